// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bootstrap

// StringSlice implements flag.Value for repeatable string flags such as
// --nats-server, which may be passed more than once to list multiple
// broker endpoints.
type StringSlice []string

func (s *StringSlice) String() string {
	if s == nil {
		return ""
	}
	out := ""
	for i, v := range *s {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out
}

func (s *StringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}
