package source

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// Repository is a YAML document that can be re-read from where it lives.
// Top-level keys are looked up with GetData.
type Repository interface {
	GetName() string
	GetData(configName string) (config interface{}, isPresent bool)
	GetRawData() []byte
	Refresh(ctx context.Context) error
}

// document holds the decoded and raw forms of the last good fetch.
type document struct {
	sync.RWMutex
	data    map[string]interface{}
	rawData []byte
}

func (d *document) GetData(configName string) (config interface{}, isPresent bool) {
	d.RLock()
	defer d.RUnlock()
	config, isPresent = d.data[configName]
	return config, isPresent
}

func (d *document) GetRawData() []byte {
	d.RLock()
	defer d.RUnlock()
	return d.rawData
}

// swap decodes raw outside the lock and replaces the document only when it
// is valid, so a bad fetch keeps the previous data.
func (d *document) swap(name string, raw []byte) error {
	var tempData map[string]interface{}
	if err := yaml.Unmarshal(raw, &tempData); err != nil {
		return fmt.Errorf("%s: error unmarshalling document: %w", name, err)
	}
	d.Lock()
	d.data = tempData
	d.rawData = raw
	d.Unlock()
	return nil
}
