package whatsapp

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"

	. "github.com/roelfdiedericks/wamcp/internal/logging"
)

// waLogger bridges whatsmeow's waLog.Logger to our L_* functions
type waLogger struct {
	module string
}

func (l *waLogger) Debugf(msg string, args ...interface{}) {
	L_tracef("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...))
}

func (l *waLogger) Infof(msg string, args ...interface{}) {
	L_debugf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...))
}

func (l *waLogger) Warnf(msg string, args ...interface{}) {
	L_warnf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...))
}

func (l *waLogger) Errorf(msg string, args ...interface{}) {
	L_errorf("whatsmeow/%s: %s", l.module, fmt.Sprintf(msg, args...))
}

func (l *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{module: l.module + "/" + module}
}
