package core

// IndexType is the upstream identifier of a life index.
type IndexType string

// The six life index types queried for every city.
const (
	IndexSport   IndexType = "1"
	IndexCarWash IndexType = "2"
	IndexDress   IndexType = "3"
	IndexUV      IndexType = "5"
	IndexCold    IndexType = "9"
	IndexComfort IndexType = "13"
)

// LifeIndexTypes lists the index types in display order.
var LifeIndexTypes = []IndexType{
	IndexSport,
	IndexCarWash,
	IndexDress,
	IndexUV,
	IndexCold,
	IndexComfort,
}

var indexNames = map[IndexType]string{
	IndexSport:   "sport",
	IndexCarWash: "car_wash",
	IndexDress:   "dress",
	IndexUV:      "uv",
	IndexCold:    "cold",
	IndexComfort: "comfort",
}

// Name returns the mapping key used for the index in batch results.
func (t IndexType) Name() string {
	if name, ok := indexNames[t]; ok {
		return name
	}
	return "index_" + string(t)
}

// UnknownIndex returns the sentinel entry for an index that could not be fetched.
func UnknownIndex(t IndexType) LifeIndexEntry {
	return LifeIndexEntry{IndexName: t.Name(), Level: Unknown, Category: Unknown}
}
