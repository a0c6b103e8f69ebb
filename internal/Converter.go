package internal

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// BoolConverter decodes API flags that arrive as true/false, 0/1 or "0"/"1".
type BoolConverter bool

func (b *BoolConverter) UnmarshalJSON(data []byte) error {
	var direct bool
	if err := json.Unmarshal(data, &direct); err == nil {
		*b = BoolConverter(direct)
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*b = num != 0
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot decode %s as a flag", data)
	}
	if n, err := strconv.ParseInt(str, 10, 64); err == nil {
		*b = n != 0
		return nil
	}
	parsed, err := strconv.ParseBool(str)
	if err != nil {
		return err
	}
	*b = BoolConverter(parsed)
	return nil
}

func (b BoolConverter) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}
