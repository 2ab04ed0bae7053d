// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package broker

import "strings"

// subjectMatches reports whether subject matches pattern, where pattern
// may contain "*" (matches exactly one token) and a trailing ">" (matches
// one or more trailing tokens).
func subjectMatches(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")

	for i := 0; i < len(p); i++ {
		switch p[i] {
		case ">":
			return i < len(s)
		case "*":
			if i >= len(s) {
				return false
			}
			continue
		default:
			if i >= len(s) || p[i] != s[i] {
				return false
			}
		}
	}

	return len(s) == len(p)
}

// coveredBySibling reports whether subject is covered by another entry in
// the same list in the form "<prefix>.>" .
func coveredBySibling(subject string, siblings []string) bool {
	for _, sib := range siblings {
		if sib == subject {
			continue
		}
		if strings.HasSuffix(sib, ".>") && subjectMatches(sib, subject) {
			return true
		}
	}
	return false
}

// normalise drops any subject in subjects that is covered by a sibling
// "<prefix>.>" entry in the same list. The result is always a subset of
// the input and is order-preserving.
func normalise(subjects []string) []string {
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if coveredBySibling(s, subjects) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// sameSubjectSet reports whether a and b normalise to the same set,
// ignoring order.
func sameSubjectSet(a, b []string) bool {
	na, nb := normalise(a), normalise(b)
	if len(na) != len(nb) {
		return false
	}
	seen := make(map[string]int, len(na))
	for _, s := range na {
		seen[s]++
	}
	for _, s := range nb {
		seen[s]--
	}
	for _, v := range seen {
		if v != 0 {
			return false
		}
	}
	return true
}
