// Package logger provides the channel-fed leveled log sinks used
// throughout the engine. The core treats logging as an ambient
// concern, not part of the archive format: callers that embed the
// engine as a library are expected to call Start once during process
// initialization (the CLI in cmd/conserve does this), and every
// Warn/Error/Debug call will block forever on an unstarted logger,
// matching the assumption that logging setup lives outside the core.
// Unlike the teacher, which lets operators scope tracing to named
// subsystems (snapshot, repository, ...), nothing in this engine
// needs more than plain, ungrouped levels, so that per-subsystem
// trace machinery is dropped here. Profile is wired to
// "conserve backup/restore --profile" rather than dropped: see
// profiler.Display.
package logger

import (
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var stdoutChannel chan string
var stderrChannel chan string
var debugChannel chan string
var profileChannel chan string

var enableInfo = false
var enableProfiling = false

var stdoutLogger *log.Logger
var stderrLogger *log.Logger
var debugLogger *log.Logger
var profileLogger *log.Logger

func init() {
	stdoutLogger = log.New(os.Stdout)
	stderrLogger = log.NewWithOptions(os.Stdout, log.Options{
		Prefix: "warn",
	})
	debugLogger = log.NewWithOptions(os.Stdout, log.Options{
		Prefix: "debug",
	})
	profileLogger = log.NewWithOptions(os.Stdout, log.Options{
		Prefix: "profile",
	})
}

func Info(format string, args ...interface{}) {
	if enableInfo {
		stdoutChannel <- fmt.Sprintf(format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	stderrChannel <- fmt.Sprintf(format, args...)
}

func Error(format string, args ...interface{}) {
	stderrChannel <- fmt.Sprintf(format, args...)
}

func Debug(format string, args ...interface{}) {
	debugChannel <- fmt.Sprintf(format, args...)
}

func Profile(format string, args ...interface{}) {
	if enableProfiling {
		profileChannel <- fmt.Sprintf(format, args...)
	}
}

func EnableInfo() {
	enableInfo = true
}

func EnableProfiling() {
	enableProfiling = true
}

func Start() func() {
	stdoutChannel = make(chan string)
	stderrChannel = make(chan string)
	debugChannel = make(chan string)
	profileChannel = make(chan string)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		for msg := range stdoutChannel {
			stdoutLogger.Print(msg)
		}
		wg.Done()
	}()

	wg.Add(1)
	go func() {
		for msg := range stderrChannel {
			stderrLogger.Print(msg)
		}
		wg.Done()
	}()

	wg.Add(1)
	go func() {
		for msg := range debugChannel {
			debugLogger.Print(msg)
		}
		wg.Done()
	}()

	wg.Add(1)
	go func() {
		for msg := range profileChannel {
			profileLogger.Print(msg)
		}
		wg.Done()
	}()

	return func() {
		close(stdoutChannel)
		close(stderrChannel)
		close(debugChannel)
		close(profileChannel)
		wg.Wait()
	}
}
