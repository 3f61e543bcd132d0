package domain

import (
	"path"
	"strings"
)

// Category classifies the content of a resource. It only drives labeling.
type Category int

// Content categories.
const (
	CategoryGenericData Category = iota
	CategoryAviationMap
	CategoryBaseMapVector
	CategoryBaseMapRaster
	CategoryTerrainData
	CategoryResourceSet
)

var categoryLabels = map[Category]string{
	CategoryAviationMap:   "Aviation Map",
	CategoryBaseMapVector: "Base Map",
	CategoryBaseMapRaster: "Raster Map",
	CategoryTerrainData:   "Terrain Map",
	CategoryGenericData:   "Data",
	CategoryResourceSet:   "Map Set",
}

var categoryNames = map[Category]string{
	CategoryAviationMap:   "aviation_map",
	CategoryBaseMapVector: "base_map_vector",
	CategoryBaseMapRaster: "base_map_raster",
	CategoryTerrainData:   "terrain_data",
	CategoryGenericData:   "generic_data",
	CategoryResourceSet:   "resource_set",
}

// Label returns the human-readable label of the category.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return categoryLabels[CategoryGenericData]
}

// String returns the machine-readable name of the category.
func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return "unknown"
}

// extensionCategories maps file suffixes to categories. Longer suffixes are
// checked first so ".raster.mbtiles" wins over ".mbtiles".
var extensionCategories = []struct {
	suffix   string
	category Category
}{
	{".raster.mbtiles", CategoryBaseMapRaster},
	{".terrain.mbtiles", CategoryTerrainData},
	{".geojson", CategoryAviationMap},
	{".mbtiles", CategoryBaseMapVector},
	{".terrain", CategoryTerrainData},
	{".tif", CategoryTerrainData},
}

// CategoryForKey derives the content category from an object key.
func CategoryForKey(key string) Category {
	lower := strings.ToLower(key)
	for _, e := range extensionCategories {
		if strings.HasSuffix(lower, e.suffix) {
			return e.category
		}
	}
	return CategoryGenericData
}

// DefaultSection is used for objects stored at the root of the origin.
const DefaultSection = "default"

// Identity is the immutable descriptive metadata of a resource.
type Identity struct {
	Section     string   // Grouping key shared by members of one set
	DisplayName string   // Human-readable name
	Category    Category // Content category
}

// IdentityForKey derives an identity from an object key such as
// "germany/openflightmaps.geojson".
func IdentityForKey(key string) Identity {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")

	section := DefaultSection
	if i := strings.Index(key, "/"); i > 0 {
		section = key[:i]
	}

	base := path.Base(key)
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}

	return Identity{
		Section:     section,
		DisplayName: base,
		Category:    CategoryForKey(key),
	}
}
