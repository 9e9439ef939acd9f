package visit

import "strings"

// Group is the set of buffered entries for one exact hostname together with
// its outbound payload.
type Group struct {
	Hostname string
	Entries  []Entry
	Payload  string
}

// Compile partitions entries by exact hostname, keeping insertion order both
// across groups (first appearance) and within each group. Each payload is the
// group's timestamps joined by newlines.
func Compile(entries []Entry) []Group {
	if len(entries) == 0 {
		return nil
	}

	index := make(map[string]int)
	var groups []Group
	for _, e := range entries {
		i, ok := index[e.Hostname]
		if !ok {
			i = len(groups)
			index[e.Hostname] = i
			groups = append(groups, Group{Hostname: e.Hostname})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}

	for i := range groups {
		stamps := make([]string, len(groups[i].Entries))
		for j, e := range groups[i].Entries {
			stamps[j] = e.Timestamp
		}
		groups[i].Payload = strings.TrimSpace(strings.Join(stamps, "\n"))
	}

	return groups
}
