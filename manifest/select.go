package manifest

import "strings"

// DestinationPattern selects entries by asset and destination identifier.
// Either part may be empty (or "*") to match everything.
type DestinationPattern struct {
	// AssetID matches the asset identifier (empty matches all)
	AssetID string

	// DestinationID matches the destination identifier (empty matches all)
	DestinationID string
}

// ParseDestinationPattern parses "ASSET", "ASSET:DEST" or ":DEST" selection
// syntax as accepted on the command line.
func ParseDestinationPattern(s string) DestinationPattern {
	asset, dest, found := strings.Cut(s, ":")
	if !found {
		return DestinationPattern{AssetID: asset}
	}
	return DestinationPattern{AssetID: asset, DestinationID: dest}
}

// Matches reports whether the pattern selects the given entry identifier.
func (p DestinationPattern) Matches(id EntryID) bool {
	return matchPart(p.AssetID, id.AssetID) && matchPart(p.DestinationID, id.DestinationID)
}

func matchPart(pattern, value string) bool {
	return pattern == "" || pattern == "*" || pattern == value
}
