// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
)

// SaveConfig writes the flags of cmd to outfile in YAML. Hidden and setup
// only flags are skipped, as are process flags left at their defaults.
// Values in overrides replace the current flag values.
func SaveConfig(cmd *cobra.Command, outfile string, overrides map[string]interface{}) error {
	vip, err := Viper(cmd)
	if err != nil {
		return Error.Wrap(err)
	}

	flags := cmd.Flags()
	saved := map[string]interface{}{}
	flags.VisitAll(func(f *pflag.Flag) {
		if readBoolAnnotation(f, "hidden") || readBoolAnnotation(f, "setup") || f.Name == "config-dir" {
			return
		}
		if flag.Lookup(f.Name) != nil && !f.Changed {
			return
		}
		saved[f.Name] = vip.GetString(f.Name)
	})
	for key, value := range overrides {
		saved[key] = value
	}

	out := viper.New()
	for key, value := range saved {
		out.Set(key, value)
	}

	if err := os.MkdirAll(filepath.Dir(outfile), 0700); err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(atomicWrite(outfile, func(tmp string) error {
		return out.WriteConfigAs(tmp)
	}))
}

// readBoolAnnotation is a helper to see if a boolean annotation is set to true on the flag.
func readBoolAnnotation(f *pflag.Flag, key string) bool {
	annotation := f.Annotations[key]
	return len(annotation) > 0 && annotation[0] == "true"
}

// atomicWrite writes outfile through write into a temporary file next to it
// and renames it into place.
func atomicWrite(outfile string, write func(tmp string) error) (err error) {
	tmp := filepath.Join(filepath.Dir(outfile), "."+filepath.Base(outfile)+".tmp"+filepath.Ext(outfile))
	defer func() {
		if err != nil {
			err = errs.Combine(err, ignoreNotExist(os.Remove(tmp)))
		}
	}()

	if err := write(tmp); err != nil {
		return errs.Wrap(err)
	}
	if err := os.Chmod(tmp, 0600); err != nil {
		return errs.Wrap(err)
	}
	return errs.Wrap(os.Rename(tmp, outfile))
}

func ignoreNotExist(err error) error {
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
