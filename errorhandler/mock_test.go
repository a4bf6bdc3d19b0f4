package errorhandler_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/slackmgr/sqsrecovery/async"
	"github.com/slackmgr/types"
	"github.com/stretchr/testify/mock"
)

// mockVisibility is a testify mock of message.Visibility.
type mockVisibility struct {
	mock.Mock
}

func (m *mockVisibility) ChangeTo(ctx context.Context, seconds int32) *async.Future {
	args := m.Called(ctx, seconds)

	f, _ := args.Get(0).(*async.Future)

	return f
}

// nilResultVisibility returns no future from ChangeTo.
type nilResultVisibility struct{}

func (nilResultVisibility) ChangeTo(context.Context, int32) *async.Future { return nil }

// recordingLogger implements types.Logger and keeps the formatted error and
// warning lines so tests can assert on what was logged.
type recordingLogger struct {
	mu     *sync.Mutex
	errors *[]string
	warns  *[]string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, errors: &[]string{}, warns: &[]string{}}
}

//nolint:ireturn // Must return interface to implement types.Logger
func (l *recordingLogger) WithField(_ string, _ any) types.Logger { return l }

//nolint:ireturn // Must return interface to implement types.Logger
func (l *recordingLogger) WithFields(_ map[string]any) types.Logger { return l }
func (l *recordingLogger) Debug(_ string)                           {}
func (l *recordingLogger) Debugf(_ string, _ ...any)                {}
func (l *recordingLogger) Info(_ string)                            {}
func (l *recordingLogger) Infof(_ string, _ ...any)                 {}
func (l *recordingLogger) Warn(msg string)                          { l.add(l.warns, msg) }
func (l *recordingLogger) Warnf(format string, args ...any)         { l.add(l.warns, fmt.Sprintf(format, args...)) }
func (l *recordingLogger) Error(msg string)                         { l.add(l.errors, msg) }
func (l *recordingLogger) Errorf(format string, args ...any)        { l.add(l.errors, fmt.Sprintf(format, args...)) }
func (l *recordingLogger) Fatal(_ string)                           {}
func (l *recordingLogger) Fatalf(_ string, _ ...any)                {}

func (l *recordingLogger) add(dst *[]string, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	*dst = append(*dst, line)
}

func (l *recordingLogger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), *l.errors...)
}

func (l *recordingLogger) Warns() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), *l.warns...)
}
