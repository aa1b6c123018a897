// Package obslog provides the low-volume, size-rotated operational log
// every engine writes debug detail to — distinct from the journal, which has
// its own bespoke monthly-rotated, hand-formatted line contract.
//
// Grounded on the teacher's indirect dependency on
// gopkg.in/natefinch/lumberjack.v2; promoted to direct use here since the
// engines need a rotating debug stream and the journal's exact line format
// cannot be handed to a generic rotating writer without breaking it.
package obslog

import (
	"log"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a prefixed *log.Logger that writes to <sharedDir>/debug.log,
// rotated at 10MB with 5 backups kept for 28 days.
func New(sharedDir, prefix string) *log.Logger {
	w := &lumberjack.Logger{
		Filename:   filepath.Join(sharedDir, "debug.log"),
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     28,
	}
	return log.New(w, "["+prefix+"] ", log.LstdFlags)
}
