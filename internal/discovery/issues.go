package discovery

import (
	"errors"
	"fmt"
	"strconv"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

// issueLog accumulates the issues of one run. Every step of the pipeline
// reports through it instead of returning errors.
type issueLog struct {
	issues []model.VerificationIssue
}

func (l *issueLog) add(sev model.Severity, phase model.Phase, ctx map[string]string, format string, args ...any) {
	l.issues = append(l.issues, model.VerificationIssue{
		Severity: sev,
		Phase:    phase,
		Message:  fmt.Sprintf(format, args...),
		Context:  ctx,
	})
}

func (l *issueLog) infof(phase model.Phase, ctx map[string]string, format string, args ...any) {
	l.add(model.SeverityInfo, phase, ctx, format, args...)
}

func (l *issueLog) warnf(phase model.Phase, ctx map[string]string, format string, args ...any) {
	l.add(model.SeverityWarning, phase, ctx, format, args...)
}

func (l *issueLog) errorf(phase model.Phase, ctx map[string]string, format string, args ...any) {
	l.add(model.SeverityError, phase, ctx, format, args...)
}

// issue context keys
const (
	ctxReaderIndex = "readerIndex"
	ctxReaderType  = "readerType"
	ctxBlob        = "blob"
	ctxTableName   = "tableName"
)

func readerCtx(index int, readerType string) map[string]string {
	return map[string]string{ctxReaderIndex: strconv.Itoa(index), ctxReaderType: readerType}
}

func blobCtx(index int, readerType string, blob storage.BlobPath) map[string]string {
	ctx := readerCtx(index, readerType)
	ctx[ctxBlob] = blob.URI
	return ctx
}

func tableCtx(table string) map[string]string {
	return map[string]string{ctxTableName: table}
}

func tableBlobCtx(table string, blob storage.BlobPath) map[string]string {
	return map[string]string{ctxTableName: table, ctxBlob: blob.URI}
}

// guard runs fn, turning a panic into an error so one misbehaving plugin
// cannot abort the run.
func guard[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

var errNoSchema = errors.New("format returned no schema")
