package collector

import (
	"fmt"
	"io"
)

type Options struct {
	ScanDir          []string
	BootCMDLineFile  string
	MergeBootCMDLine bool
	NoLogs           bool
	StrictValidation bool
	Overwrites       string
	Readers          []io.Reader
}

type Option func(o *Options) error

// Apply applies option functions to the options struct.
func (o *Options) Apply(opts ...Option) error {
	for _, oo := range opts {
		if err := oo(o); err != nil {
			return err
		}
	}
	return nil
}

// SoftErr prints a warning if err is not nil and logs are enabled.
func (o Options) SoftErr(message string, err error) {
	if !o.NoLogs && err != nil {
		fmt.Printf("WARNING: %s, %s\n", message, err.Error())
	}
}

var NoLogs Option = func(o *Options) error {
	o.NoLogs = true
	return nil
}

var StrictValidation Option = func(o *Options) error {
	o.StrictValidation = true
	return nil
}

var MergeBootLine Option = func(o *Options) error {
	o.MergeBootCMDLine = true
	return nil
}

func Directories(d ...string) Option {
	return func(o *Options) error {
		o.ScanDir = d
		return nil
	}
}

func Readers(r ...io.Reader) Option {
	return func(o *Options) error {
		o.Readers = r
		return nil
	}
}

func Overwrites(s string) Option {
	return func(o *Options) error {
		o.Overwrites = s
		return nil
	}
}

func WithBootCMDLineFile(f string) Option {
	return func(o *Options) error {
		o.BootCMDLineFile = f
		return nil
	}
}
