/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package frequency converts node reporting frequencies between hours/minutes/seconds
// and the integer seconds carried on the wire.
package frequency

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	maxHours   = 23
	maxMinutes = 59
	maxSeconds = 59

	secondsPerMinute = 60
	secondsPerHour   = 3600
	hoursPerDay      = 24
)

// HMS is a frequency split into clock fields.
type HMS struct {
	Hours   int
	Minutes int
	Seconds int
}

// ToSeconds converts clock fields to total seconds. Hours clamp to [0,23],
// minutes and seconds to [0,59].
func ToSeconds(h, m, s int) int {
	return clamp(h, maxHours)*secondsPerHour + clamp(m, maxMinutes)*secondsPerMinute + clamp(s, maxSeconds)
}

// ToHMS splits total seconds into clock fields. It inverts ToSeconds below one
// day; at or above 86400 the hour field wraps modulo 24. Negative input is 0.
func ToHMS(seconds int) HMS {
	if seconds < 0 {
		seconds = 0
	}

	return HMS{
		Hours:   (seconds / secondsPerHour) % hoursPerDay,
		Minutes: (seconds % secondsPerHour) / secondsPerMinute,
		Seconds: seconds % secondsPerMinute,
	}
}

// Total returns the clamped wire value of h in seconds.
func (h HMS) Total() int {
	return ToSeconds(h.Hours, h.Minutes, h.Seconds)
}

// String renders h as zero-padded hh:mm:ss.
func (h HMS) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", h.Hours, h.Minutes, h.Seconds)
}

// Parse reads operator input of the form hh:mm:ss, mm:ss or ss. Missing or
// non-numeric fields read as 0 and out-of-range fields clamp.
func Parse(s string) HMS {
	fields := strings.Split(strings.TrimSpace(s), ":")
	if len(fields) > 3 {
		fields = fields[len(fields)-3:]
	}

	var v [3]int

	offset := 3 - len(fields)
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			n = 0
		}

		v[offset+i] = n
	}

	return HMS{
		Hours:   clamp(v[0], maxHours),
		Minutes: clamp(v[1], maxMinutes),
		Seconds: clamp(v[2], maxSeconds),
	}
}

func clamp(v, upper int) int {
	switch {
	case v < 0:
		return 0
	case v > upper:
		return upper
	default:
		return v
	}
}
