package receivers

import (
	"context"
	"fmt"
	"log"

	"gopkg.in/natefinch/lumberjack.v2"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
	"github.com/dctrlwtf/bepsi/pkg/conductor"
)

// MessageLogger writes bus traffic to a rotating log file. One is
// started per configured logger, each with its own event type filter,
// so payment history and rail health can land in separate files.
type MessageLogger struct {
	// receives bepsi.Message via Rec
	Rec chan bepsi.Message
	// and logs them via Log
	Log *log.Logger
}

// Implements bepsi.MessageSubscriber
func (l MessageLogger) GetChan() chan bepsi.Message {
	return l.Rec
}

// Implements conductor.Service
func (l MessageLogger) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		rec := l.Rec
		for {
			select {
			case <-stop:
				close(stopped)
				return
			case msg, ok := <-rec:
				if !ok {
					// unregistered by the bus; wait for shutdown
					rec = nil
					continue
				}
				l.Log.Printf("%s:%s (%s): %s\n",
					msg.EventType.Type(),
					msg.EventType,
					msg.ID,
					msg.Message)
			}
		}
	}()
	return nil
}

func NewMessageLogger(path string) MessageLogger {
	return MessageLogger{
		make(chan bepsi.Message, 1000),
		log.New(&lumberjack.Logger{
			Filename: path,
			Compress: true,
		}, "", log.Ltime|log.Lmicroseconds),
	}
}

// SetupLoggers reads config and starts any configured loggers.
func SetupLoggers(cond *conductor.Conductor, bus bepsi.MessageBus, conf bepsi.Config) {
	for name, c := range conf.Loggers {
		l := NewMessageLogger(c.Path)
		cond.Service(fmt.Sprintf("Logger %s", c.Path), l)

		types := []bepsi.EventType{}
		for _, t := range c.Types {
			match := false
			for _, x := range bepsi.EVENT_TYPES {
				if t == x.Type() {
					match = true
					types = append(types, x)
				}
			}
			if !match {
				log.Printf("Logger %s: ignoring invalid message type: %s", name, t)
			}
		}
		bus.Register(l, types...)
	}
}
