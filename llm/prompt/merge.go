package prompt

import (
	"fmt"
	"strings"
)

// Layout 合并布局
type Layout string

const (
	LayoutBlend      Layout = "blend"
	LayoutHorizontal Layout = "horizontal"
	LayoutGrid       Layout = "grid"
)

// ParseLayout normalizes a layout name; unknown values fall back to blend.
func ParseLayout(value string) Layout {
	switch Layout(strings.ToLower(strings.TrimSpace(value))) {
	case LayoutHorizontal:
		return LayoutHorizontal
	case LayoutGrid:
		return LayoutGrid
	default:
		return LayoutBlend
	}
}

// MergeInstruction returns the edit instruction that combines count images.
func MergeInstruction(layout Layout, count int) string {
	subject := "both images"
	if count > 2 {
		subject = fmt.Sprintf("%d images", count)
	}

	switch layout {
	case LayoutHorizontal:
		return fmt.Sprintf("Combine %s into a single panoramic image arranged side by side with clean seams, consistent lighting and matching perspective.", subject)
	case LayoutGrid:
		return fmt.Sprintf("Create a cohesive collage that arranges %s in a balanced grid layout with even spacing and unified color grading.", subject)
	default:
		return fmt.Sprintf("Blend %s into one cohesive scene with smooth transitions, consistent colors and a photorealistic finish.", subject)
	}
}
