// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package archiver

import (
	"encoding/json"

	"github.com/tspi-telemetry/tspi-pipeline/pkg/log"
)

func marshalHeaders(headers map[string]string) []byte {
	data, err := json.Marshal(headers)
	if err != nil {
		log.Warnf("archiver: marshal headers failed: %v", err)
		return nil
	}
	return data
}

func marshalPayload(payload any) []byte {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Warnf("archiver: marshal payload failed: %v", err)
		return nil
	}
	return data
}

func marshalStatusFlags(flags any) []byte {
	data, err := json.Marshal(flags)
	if err != nil {
		log.Warnf("archiver: marshal status flags failed: %v", err)
		return nil
	}
	return data
}
