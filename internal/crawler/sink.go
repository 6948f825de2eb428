package crawler

import "github.com/sirupsen/logrus"

// Sink receives the crawler's progress lines: round starts, percentage
// milestones and flush notices
type Sink interface {
	Log(line string)
}

// SinkFunc adapts a plain function to Sink
type SinkFunc func(line string)

// Log calls f(line)
func (f SinkFunc) Log(line string) {
	f(line)
}

// LogSink writes progress lines through logrus
type LogSink struct{}

// Log implements Sink
func (LogSink) Log(line string) {
	logrus.Info(line)
}
