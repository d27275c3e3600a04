package app

import "github.com/pelletier/go-toml/v2"

func decodeToml(data []byte, v interface{}) error {
	return toml.Unmarshal(data, v)
}
