package auth

import "github.com/nerrad567/jcihitachi-core/internal/cloud/thing"

// getAllDeviceResponse is the body of the vendor device listing. Only the
// fields this package reads are declared.
type getAllDeviceResponse struct {
	Results *struct {
		Things []thing.Record `json:"Things"`
	} `json:"results"`
}
