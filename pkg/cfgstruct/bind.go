// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package cfgstruct binds annotated config structs to command line flags.
//
// Every exported field becomes a flag named after the hyphenated field name,
// nested structs add a dotted prefix and embedded structs are flattened. The
// `help` tag holds the usage text and the `default` tag the default value,
// where $CONFDIR is replaced by the configured directory. The `testDefault`
// tag overrides `default` when binding with UseTestDefaults.
package cfgstruct

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/pflag"
)

// BindOpt configures Bind.
type BindOpt func(*bindOptions)

type bindOptions struct {
	vars         map[string]string
	testDefaults bool
}

// ConfDir sets the value substituted for $CONFDIR in defaults.
func ConfDir(path string) BindOpt {
	return func(opts *bindOptions) {
		opts.vars["CONFDIR"] = os.ExpandEnv(path)
	}
}

// UseTestDefaults prefers `testDefault` tags over `default` tags.
func UseTestDefaults() BindOpt {
	return func(opts *bindOptions) {
		opts.testDefaults = true
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// Bind registers a flag for every field of config, which must be a pointer
// to a struct, and sets the fields to their defaults.
func Bind(flags *pflag.FlagSet, config interface{}, opts ...BindOpt) {
	options := bindOptions{vars: map[string]string{}}
	for _, opt := range opts {
		opt(&options)
	}

	ptr := reflect.ValueOf(config)
	if ptr.Kind() != reflect.Ptr || ptr.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("cfgstruct: invalid config type %T", config))
	}
	bindStruct(flags, "", ptr.Elem(), &options)
}

func bindStruct(flags *pflag.FlagSet, prefix string, value reflect.Value, options *bindOptions) {
	typ := value.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		fieldValue := value.Field(i)

		if field.Type.Kind() == reflect.Struct && field.Type != durationType {
			if field.Anonymous {
				bindStruct(flags, prefix, fieldValue, options)
			} else {
				bindStruct(flags, prefix+hyphenate(field.Name)+".", fieldValue, options)
			}
			continue
		}

		name := prefix + hyphenate(field.Name)
		help := field.Tag.Get("help")
		def := field.Tag.Get("default")
		if testDef, ok := field.Tag.Lookup("testDefault"); ok && options.testDefaults {
			def = testDef
		}
		def = os.Expand(def, func(key string) string {
			if v, ok := options.vars[key]; ok {
				return v
			}
			return os.Getenv(key)
		})

		switch kind := field.Type.Kind(); {
		case field.Type == durationType:
			flags.DurationVar(pointer[time.Duration](fieldValue), name, mustParse(name, def, parseDuration), help)
		case kind == reflect.String:
			flags.StringVar(pointer[string](fieldValue), name, def, help)
		case kind == reflect.Bool:
			flags.BoolVar(pointer[bool](fieldValue), name, mustParse(name, def, parseBool), help)
		case kind == reflect.Int:
			flags.IntVar(pointer[int](fieldValue), name, int(mustParse(name, def, parseInt)), help)
		case kind == reflect.Int64:
			flags.Int64Var(pointer[int64](fieldValue), name, mustParse(name, def, parseInt), help)
		case kind == reflect.Float64:
			flags.Float64Var(pointer[float64](fieldValue), name, mustParse(name, def, parseFloat), help)
		default:
			panic(fmt.Sprintf("cfgstruct: field %s has unsupported type %s", name, field.Type))
		}
		if field.Tag.Get("hidden") == "true" {
			_ = flags.SetAnnotation(name, "hidden", []string{"true"})
		}
	}
}

// pointer returns the address of value as *T, which allows named types such
// as `type OrderBy string` to be bound as their underlying type.
func pointer[T any](value reflect.Value) *T {
	return value.Addr().Convert(reflect.TypeOf((*T)(nil))).Interface().(*T)
}

func mustParse[T any](name, value string, parse func(string) (T, error)) T {
	v, err := parse(value)
	if err != nil {
		panic(fmt.Sprintf("cfgstruct: invalid default %q for %s: %v", value, name, err))
	}
	return v
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 0, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// hyphenate converts a Go field name into a flag name, e.g. TrashPath
// becomes trash-path and MaxTTL becomes max-ttl.
func hyphenate(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1])
			nextLower := i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1])
			if prevLower || nextLower {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FindConfigDir returns the value of --config-dir in args, or def when it is
// not present. It lets defaults containing $CONFDIR follow the directory
// chosen on the command line before the flags are parsed.
func FindConfigDir(args []string, def string) string {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.Usage = func() {}
	flags.SetOutput(io.Discard)

	dir := flags.String("config-dir", def, "")
	_ = flags.Parse(args)
	return *dir
}
