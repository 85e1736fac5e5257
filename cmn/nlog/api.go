// Package nlog - exchange logger, provides buffering, timestamping, writing, and
// flushing/rotating
/*
 * Copyright (c) 2023-2025, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"flag"
	"io"
)

var (
	MaxSize int64 = 4 * 1024 * 1024
)

func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", true, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
}

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// SetLogDirRole switches logging from stderr to rotated files under dir.
func SetLogDirRole(dir, role string) {
	mu.Lock()
	logDir, srole, toStderr = dir, role, dir == ""
	mu.Unlock()
}

func SetTitle(s string) { title = s }

// SetOutput redirects stderr-mode output (tests).
func SetOutput(w io.Writer) {
	mu.Lock()
	stderr = w
	mu.Unlock()
}

func InfoLogName() string { return sname() + ".INFO" }
func ErrLogName() string  { return sname() + ".ERROR" }

func Flush() {
	mu.Lock()
	for _, nlog := range nlogs {
		if nlog != nil {
			nlog.flush()
		}
	}
	mu.Unlock()
}

func FlushExit() {
	mu.Lock()
	for i, nlog := range nlogs {
		if nlog != nil {
			nlog.flush()
			nlog.file.Close()
			nlogs[i] = nil
		}
	}
	mu.Unlock()
}
