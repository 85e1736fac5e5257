// Package nlog - exchange logger, provides buffering, timestamping, writing, and
// flushing/rotating
/*
 * Copyright (c) 2023-2025, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	nlogBufSize  = 64 * 1024
	nlogLineSize = 4 * 1024
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

const sevChars = "IWE"

type nlog struct {
	file *os.File
	pw   *fixed
	size int64
	sev  severity
}

var (
	host    = "unknown"
	sevText = []string{sevInfo: "INFO", sevErr: "ERROR"}

	pool = sync.Pool{
		New: func() any {
			return &fixed{buf: make([]byte, nlogLineSize)}
		},
	}

	mu     sync.Mutex
	nlogs  [3]*nlog
	stderr io.Writer = os.Stderr

	toStderr     = true
	alsoToStderr bool

	logDir string
	arg0   string
	srole  string
	title  string
	pid    int
)

func init() {
	pid = os.Getpid()
	arg0 = filepath.Base(os.Args[0])
	if h, err := os.Hostname(); err == nil {
		if before, _, ok := strings.Cut(h, "."); ok {
			h = before
		}
		host = h
	}
}

// main function
func log(sev severity, depth int, format string, args ...any) {
	fb := alloc()
	sprintf(sev, depth+1, format, fb, args...)

	mu.Lock()
	if toStderr || logDir == "" {
		stderr.Write(fb.buf[:fb.woff])
		mu.Unlock()
		free(fb)
		return
	}
	if alsoToStderr || sev >= sevErr {
		stderr.Write(fb.buf[:fb.woff])
	}
	if err := fcreateAll(); err != nil {
		stderr.Write(fb.buf[:fb.woff])
	} else {
		if sev >= sevWarn {
			nlogs[sevErr].write(fb)
		}
		nlogs[sevInfo].write(fb)
	}
	mu.Unlock()
	free(fb)
}

// under mu
func (nlog *nlog) write(line *fixed) {
	if nlog.pw.avail() < line.woff {
		nlog.flush()
	}
	nlog.pw.Write(line.buf[:line.woff])
	if nlog.size+int64(nlog.pw.woff) >= MaxSize {
		nlog.flush()
		if err := nlog.rotate(time.Now()); err != nil {
			fmt.Fprintln(stderr, "Error: [nlog] rotate:", err)
		}
	}
}

// under mu
func (nlog *nlog) flush() {
	if nlog.pw.woff == 0 {
		return
	}
	n, err := nlog.file.Write(nlog.pw.buf[:nlog.pw.woff])
	if err != nil {
		fmt.Fprintf(stderr, "Error: [nlog] drop %dB: %v\n", nlog.pw.woff, err)
	}
	nlog.size += int64(n)
	nlog.pw.reset()
}

func (nlog *nlog) rotate(now time.Time) (err error) {
	var (
		s    = fmt.Sprintf("host %s, %s for %s/%s\n", host, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		snow = now.Format("2006/01/02 15:04:05")
	)
	if nlog.file != nil {
		nlog.file.Close()
	}
	if nlog.file, err = fcreate(sevText[nlog.sev], now); err != nil {
		return
	}
	nlog.size = 0
	if title == "" {
		_, err = nlog.file.WriteString("Started up at " + snow + ", " + s)
	} else {
		nlog.file.WriteString("Rotated at " + snow + ", " + s)
		_, err = nlog.file.WriteString(title)
	}
	return
}

//
// utils
//

func fcreateAll() error {
	now := time.Now()
	for _, sev := range []severity{sevErr, sevInfo} {
		if nlogs[sev] != nil {
			continue
		}
		nlog := &nlog{sev: sev, pw: &fixed{buf: make([]byte, nlogBufSize)}}
		if err := nlog.rotate(now); err != nil {
			return err
		}
		nlogs[sev] = nlog
	}
	return nil
}

func fcreate(tag string, t time.Time) (*os.File, error) {
	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		return nil, err
	}
	name, link := logfname(tag, t)
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, err
	}
	// re-symlink
	symlink := filepath.Join(logDir, link)
	os.Remove(symlink)
	os.Symlink(name, symlink)
	return f, nil
}

func sname() string {
	if srole != "" {
		return arg0 + "-" + srole
	}
	return arg0
}

func logfname(tag string, t time.Time) (name, link string) {
	s := sname()
	name = fmt.Sprintf("%s.%s.%s.%02d%02d-%02d%02d%02d.%d",
		s, host, tag, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), pid)
	return name, s + "." + tag
}

func formatHdr(s severity, depth int, fb *fixed) {
	_, fn, ln, ok := runtime.Caller(3 + depth)
	fb.writeByte(sevChars[s])
	fb.writeByte(' ')
	fb.writeStamp()
	fb.writeByte(' ')
	if !ok {
		return
	}
	if idx := strings.LastIndexByte(fn, filepath.Separator); idx > 0 {
		fn = fn[idx+1:]
	}
	fb.writeString(fn)
	fb.writeByte(':')
	fb.writeString(strconv.Itoa(ln))
	fb.writeString("] ")
}

func sprintf(sev severity, depth int, format string, fb *fixed, args ...any) {
	formatHdr(sev, depth, fb)
	if format == "" {
		fmt.Fprintln(fb, args...) // operands always space-separated
	} else {
		fmt.Fprintf(fb, format, args...)
	}
	fb.eol()
}

func alloc() (fb *fixed) {
	fb = pool.Get().(*fixed)
	fb.reset()
	return
}

func free(fb *fixed) { pool.Put(fb) }
