// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

// Package log provides one stdlib *log.Logger per named component, gated
// by a single debug flag, the same shape as gcsproxy's getLogger but
// shared across every package in this module instead of being private to
// one.
package log

import (
	"flag"
	"io"
	"log"
	"os"
)

var fEnableDebug = flag.Bool(
	"edenfs.debug",
	false,
	"Write edenfs debugging messages to stderr.")

// New returns a logger that writes to stderr, prefixed with component,
// when debugging is enabled, and discards everything otherwise.
func New(component string) *log.Logger {
	var writer io.Writer = io.Discard
	if *fEnableDebug {
		writer = os.Stderr
	}
	return log.New(writer, component+": ", log.LstdFlags)
}
