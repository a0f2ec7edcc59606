package operation

import (
	"fmt"

	"github.com/fpang/beauty-retouch/internal/faceregion"
)

// ToolType identifies the enhancement a stroke applies. The string form is
// what gets persisted.
type ToolType string

// Retouching tools.
const (
	SkinSmoothing     ToolType = "skinSmoothing"
	BlemishRemoval    ToolType = "blemishRemoval"
	DarkCircleRemoval ToolType = "darkCircleRemoval"
	EyeBrightening    ToolType = "eyeBrightening"
	TeethWhitening    ToolType = "teethWhitening"
	LipColor          ToolType = "lipColor"
	HairColor         ToolType = "hairColor"
	EyeColor          ToolType = "eyeColor"
	Blush             ToolType = "blush"
	FaceSlimming      ToolType = "faceSlimming"
	EyeEnlarging      ToolType = "eyeEnlarging"
	NoseReshaping     ToolType = "noseReshaping"
)

// Family groups tools that share a raster kernel.
type Family string

const (
	FamilySmoothing   Family = "smoothing"
	FamilyBrightening Family = "brightening"
	FamilyColor       Family = "color"
	FamilyWarp        Family = "warp"
)

// Category is the menu grouping a tool is offered under.
type Category string

const (
	CategorySkin  Category = "skin"
	CategoryEyes  Category = "eyes"
	CategoryMouth Category = "mouth"
	CategoryShape Category = "shape"
	CategoryHair  Category = "hair"
)

// Categories lists menu categories in display order.
var Categories = []Category{CategorySkin, CategoryEyes, CategoryMouth, CategoryShape, CategoryHair}

// ToolSpec is the static description of a tool.
type ToolSpec struct {
	Tool     ToolType
	Family   Family
	Category Category
	// Region is the face region the tool is scoped to by default, if any.
	Region faceregion.Name
	// RequiresRegion means the tool cannot run without a region mask.
	RequiresRegion bool
	// UsesPalette means the tool takes a target color from a region palette.
	UsesPalette bool
}

// tools is ordered by category, then by how prominently the tool is shown.
var tools = []ToolSpec{
	{Tool: SkinSmoothing, Family: FamilySmoothing, Category: CategorySkin},
	{Tool: BlemishRemoval, Family: FamilySmoothing, Category: CategorySkin},
	{Tool: Blush, Family: FamilyColor, Category: CategorySkin, Region: faceregion.Skin, UsesPalette: true},
	{Tool: EyeBrightening, Family: FamilyBrightening, Category: CategoryEyes, Region: faceregion.Eyes},
	{Tool: DarkCircleRemoval, Family: FamilySmoothing, Category: CategoryEyes},
	{Tool: EyeColor, Family: FamilyColor, Category: CategoryEyes, Region: faceregion.Eyes, RequiresRegion: true, UsesPalette: true},
	{Tool: LipColor, Family: FamilyColor, Category: CategoryMouth, Region: faceregion.Lips, RequiresRegion: true, UsesPalette: true},
	{Tool: TeethWhitening, Family: FamilyBrightening, Category: CategoryMouth, Region: faceregion.Teeth},
	{Tool: FaceSlimming, Family: FamilyWarp, Category: CategoryShape, Region: faceregion.Face},
	{Tool: EyeEnlarging, Family: FamilyWarp, Category: CategoryShape, Region: faceregion.Eyes},
	{Tool: NoseReshaping, Family: FamilyWarp, Category: CategoryShape, Region: faceregion.Nose},
	{Tool: HairColor, Family: FamilyColor, Category: CategoryHair, Region: faceregion.Hair, RequiresRegion: true, UsesPalette: true},
}

var toolIndex = func() map[ToolType]ToolSpec {
	m := make(map[ToolType]ToolSpec, len(tools))
	for _, t := range tools {
		m[t.Tool] = t
	}
	return m
}()

// Spec returns the static description of a tool.
func (t ToolType) Spec() (ToolSpec, bool) {
	s, ok := toolIndex[t]
	return s, ok
}

// Family returns the kernel family, or "" for an unknown tool.
func (t ToolType) Family() Family {
	return toolIndex[t].Family
}

// Known reports whether t is in the tool catalog.
func (t ToolType) Known() bool {
	_, ok := toolIndex[t]
	return ok
}

// ParseToolType resolves a persisted tool name.
func ParseToolType(s string) (ToolType, error) {
	t := ToolType(s)
	if !t.Known() {
		return "", fmt.Errorf("unknown tool %q", s)
	}
	return t, nil
}

// Tools returns every tool spec in menu order.
func Tools() []ToolSpec {
	out := make([]ToolSpec, len(tools))
	copy(out, tools)
	return out
}

// ToolsIn returns the tools of one category in menu order.
func ToolsIn(c Category) []ToolSpec {
	var out []ToolSpec
	for _, t := range tools {
		if t.Category == c {
			out = append(out, t)
		}
	}
	return out
}
