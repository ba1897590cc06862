/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package config

import (
	"fmt"

	libval "github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	liberr "github.com/nabbar/l4lb/internal/errors"
)

const (
	codeReadFile liberr.CodeError = liberr.MinPkgConfig + iota + 1
	codeDecode
	codeValidate
	codeDuplicateRule
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgConfig, func(code liberr.CodeError) string {
		switch code {
		case codeReadFile:
			return "unable to read configuration file"
		case codeDecode:
			return "unable to decode configuration"
		case codeValidate:
			return "configuration failed validation"
		case codeDuplicateRule:
			return "duplicate rule name"
		}
		return ""
	})
}

// Load reads and validates the YAML file at path, returning the decoded
// configuration. Backend entries given as bare strings ("ip:port") in the
// source YAML are normalized to BackendSpec{Addr: "ip:port"} before
// validation.
func Load(path string) (*File, liberr.Error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, liberr.New(codeReadFile, err)
	}

	raw := v.AllSettings()
	normalizeBackends(raw)

	var f File
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &f,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, liberr.New(codeDecode, err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, liberr.New(codeDecode, err)
	}

	if err := validateFile(&f); err != nil {
		return nil, err
	}

	return &f, nil
}

// normalizeBackends rewrites any `backends: ["ip:port", ...]` entry in raw
// settings into the object shape {addr: "ip:port"} mapstructure expects,
// since viper's YAML decode leaves bare list entries as plain strings.
func normalizeBackends(raw map[string]interface{}) {
	rulesIface, ok := raw["rules"]
	if !ok {
		return
	}
	rules, ok := rulesIface.([]interface{})
	if !ok {
		return
	}
	for _, ruleIface := range rules {
		rule, ok := ruleIface.(map[string]interface{})
		if !ok {
			continue
		}
		backendsIface, ok := rule["backends"]
		if !ok {
			continue
		}
		backends, ok := backendsIface.([]interface{})
		if !ok {
			continue
		}
		for i, b := range backends {
			if addr, ok := b.(string); ok {
				backends[i] = map[string]interface{}{"addr": addr}
			}
		}
		rule["backends"] = backends
	}
}

func validateFile(f *File) liberr.Error {
	val := libval.New()
	if er := val.Struct(f); er != nil {
		return liberr.New(codeValidate, er)
	}

	seen := make(map[string]bool, len(f.Rules))
	for _, r := range f.Rules {
		if seen[r.Name] {
			return liberr.New(codeDuplicateRule, fmt.Errorf("rule name %q is declared more than once", r.Name))
		}
		seen[r.Name] = true
	}

	return nil
}
