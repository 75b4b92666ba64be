// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

// LabelAuto is shown while automatic switching has not reported a level yet.
const LabelAuto = "Auto"

// QualityLabel maps a rendition's native height to its display label.
func QualityLabel(height int, auto bool) string {
	var label string
	switch {
	case height >= 2160:
		label = "4K"
	case height >= 1440:
		label = "2K"
	case height >= 1080:
		label = "FHD"
	case height >= 720:
		label = "HD"
	default:
		label = "SD"
	}
	if auto {
		return LabelAuto + " (" + label + ")"
	}
	return label
}
