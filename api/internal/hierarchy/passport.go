package hierarchy

import (
	"fmt"
	"sort"
	"strconv"
)

// DiffAttributes compares a proposed passport against the current one and
// returns one "<key>: <old> -> <new>" description per changed key, keys in
// sorted order. Only keys present in the proposed record are considered;
// comparison is loose, so the number 5 and the string "5" count as equal
// (form inputs arrive as text). An absent old value renders as "-".
func DiffAttributes(current, proposed Attributes) []string {
	keys := make([]string, 0, len(proposed))
	for k := range proposed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var changes []string
	for _, k := range keys {
		newVal := formatValue(proposed[k])
		oldRaw, ok := current[k]
		oldVal := "-"
		if ok {
			oldVal = formatValue(oldRaw)
		}
		if ok && oldVal == newVal {
			continue
		}
		if !ok && newVal == "" {
			continue
		}
		changes = append(changes, k+": "+oldVal+" -> "+newVal)
	}
	return changes
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
