package aof

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

func (d *DiskKV) replayLogs() error {
	index, err := d.log.LastIndex()
	if err != nil {
		return fmt.Errorf("error reading last log index: %w", err)
	}
	d.logger.Info("Replaying mutation logs", zap.Uint64("index", index))
	mut := &mutation{}
	for i := uint64(1); i <= index; i++ {
		buf, err := d.log.Read(i)
		if err != nil {
			return fmt.Errorf("error reading log at index %d: %w", i, err)
		}
		if err := d.decodeEntry(buf, mut); err != nil {
			return fmt.Errorf("error decoding entry to mutation at index %d: %w", i, err)
		}
		if res := d.handleMutation(mut); res.err != nil {
			return fmt.Errorf("error apply mutation to memory state at index %d: %w", i, res.err)
		}
		mut.Reset()
	}
	d.next = index + 1
	return nil
}

func (d *DiskKV) decodeEntry(buf []byte, mut *mutation) error {
	version, data, err := unmarshalEntry(buf)
	if err != nil {
		return fmt.Errorf("error deserializing log entry: %w", err)
	}
	switch version {
	case logVersionV1:
		// uncompressed
		return mut.unmarshal(data)
	default:
		return fmt.Errorf("unknown log version: %d", version)
	}
}

func (d *DiskKV) appendLog(mut *mutation) error {
	logBuf := marshalEntry(logVersionV1, mut.marshal())

	if err := d.log.Write(d.next, logBuf); err != nil {
		d.logger.Error("Error appending to log", zap.Uint64("index", d.next), zap.String("mutation", mut.Type.String()), zap.Error(err))
		return err
	}
	d.next += 1
	return nil
}

func (d *DiskKV) rollbackOne(mut *mutation, err error) {
	d.logger.Warn("Rolling back last mutation because of an error",
		zap.String("mutation", mut.Type.String()),
		zap.Uint64("truncate", d.next-2),
		zap.Uint64("index", d.next-1),
		zap.Error(err),
	)
	d.next -= 1
	if err := d.log.TruncateBack(d.next - 1); err != nil {
		d.logger.Error("Error applying rollback to the last mutation",
			zap.Error(err))
	}
}

// skippable reports mutations that would not change state, so they are not
// written to the log. Only called from the writer goroutine.
func (d *DiskKV) skippable(mut *mutation) bool {
	if mut.Type != mutationDelete {
		return false
	}
	v, _ := d.state.Get(context.Background(), mut.Key)
	return v == nil
}

func (d *DiskKV) handleMutation(mut *mutation) (res result) {
	ctx := context.Background()

	d.logger.Debug("Handling mutation", zap.String("mutation", mut.Type.String()))

	switch mut.Type {
	case mutationPut:
		res.value, res.err = d.state.Put(ctx, mut.Key, mut.Value)
	case mutationDelete:
		res.value, res.err = d.state.Delete(ctx, mut.Key)
	case mutationDeleteRange:
		res.count, res.err = d.state.DeleteByHashRange(ctx, mut.Range)
	default:
		res.err = fmt.Errorf("unknown mutation type: %d", mut.Type)
	}
	return
}
