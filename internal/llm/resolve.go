package llm

import "strings"

// ResolvePreference chooses a configured model name from a `;`-separated
// preference list against a set of available model keys, exactly
// reproducing original_source/core/llm_adapter.py's generate_stream
// resolution order:
//
//  1. split pref on ';', trim, drop empties
//  2. for each candidate in order: exact key match wins immediately;
//     else the first available key containing candidate as a substring
//     wins (in the iteration order of availableOrder)
//  3. if nothing matched: "replyer" if present, else the first available
//     key (in availableOrder), else ok=false
func ResolvePreference(pref string, available map[string]string, availableOrder []string) (key string, ok bool) {
	candidates := splitPreferences(pref)

	for _, candidate := range candidates {
		if _, exact := available[candidate]; exact {
			return candidate, true
		}
		for _, name := range availableOrder {
			if strings.Contains(name, candidate) {
				return name, true
			}
		}
	}

	if _, ok := available["replyer"]; ok {
		return "replyer", true
	}
	if len(availableOrder) > 0 {
		return availableOrder[0], true
	}
	return "", false
}

func splitPreferences(pref string) []string {
	parts := strings.Split(pref, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
