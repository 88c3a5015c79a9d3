// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package notify

import (
	"strconv"
	"strings"

	"github.com/Thermoquad/teleostat/pkg/teleinfo"
)

// maxLabelLen bounds placeholder names
const maxLabelLen = 15

// Pseudo-labels resolved by Expand instead of the frame
const (
	PseudoType   = "_type"
	PseudoTS     = "_ts"
	PseudoDate   = "_date"
	PseudoChipID = "_chipid"
)

// Vars carries the values of the pseudo-labels
type Vars struct {
	Type   Tag
	ChipID string
}

// Expand substitutes ~LABEL~ and $LABEL placeholders in tmpl with normalized
// values from f. "~~" and "$$" produce a literal character; labels absent
// from the frame expand to "".
func Expand(tmpl string, f *teleinfo.Frame, vars Vars) string {
	var sb strings.Builder
	sb.Grow(len(tmpl) + 32)

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '~':
			end := strings.IndexByte(tmpl[i+1:], '~')
			var name string
			if end < 0 {
				name = tmpl[i+1:]
				i = len(tmpl)
			} else {
				name = tmpl[i+1 : i+1+end]
				i += end + 1
			}
			if len(name) > maxLabelLen {
				name = name[:maxLabelLen]
			}
			if name == "" {
				sb.WriteByte('~')
				continue
			}
			sb.WriteString(resolve(name, f, vars))

		case '$':
			if i+1 < len(tmpl) && tmpl[i+1] == '$' {
				sb.WriteByte('$')
				i++
				continue
			}
			j := i + 1
			for j < len(tmpl) && j-i-1 < maxLabelLen && isLabelChar(tmpl[j]) {
				j++
			}
			if j == i+1 {
				sb.WriteByte('$')
				continue
			}
			sb.WriteString(resolve(tmpl[i+1:j], f, vars))
			i = j - 1

		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func isLabelChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '_'
}

func resolve(name string, f *teleinfo.Frame, vars Vars) string {
	switch name {
	case PseudoType:
		return string(vars.Type)
	case PseudoTS:
		if f.IsEmpty() {
			return ""
		}
		return strconv.FormatInt(f.Timestamp().Unix(), 10)
	case PseudoDate:
		if f.IsEmpty() {
			return ""
		}
		return f.TimestampISO8601()
	case PseudoChipID:
		return vars.ChipID
	}
	return f.GetValue(name, "", true)
}
