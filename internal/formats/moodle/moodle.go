// Package moodle reads and writes Moodle XML question banks.
package moodle

import "github.com/mind-engage/mindengage-qbank/internal/formats"

func init() {
	formats.Register("moodle", New())
}

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) ContentType() string { return "application/xml" }
