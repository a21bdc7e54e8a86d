// metadata.go - Metadaten-Anhang fuer exportierte Modelle
//
// Dieses Modul enthaelt:
// - Metadata: Quantisierungs-Konfiguration und Scheduling-Info
// - NewMetadata/Attach: Erzeugen und Anheften, wenn die Plattform
//   Metadaten-Einbettung verlangt
package export

import (
	"fmt"

	"github.com/7blacky7/quantkit/core"
	"github.com/7blacky7/quantkit/mixedprecision"
	"github.com/7blacky7/quantkit/tpc"
)

// Version is the tool version stamped into exported metadata.
const Version = "1.0.0"

// Metadata is the information embedded into an exported model when
// the capability spec requests it.
type Metadata struct {
	Tool       string
	Version    string
	Platform   string
	RunID      string
	Scheduling mixedprecision.SchedulingInfo
}

// NewMetadata builds the metadata block for one finished run.
func NewMetadata(spec *tpc.CapabilitySpec, info *core.UserInformation) *Metadata {
	return &Metadata{
		Tool:       "quantkit",
		Version:    Version,
		Platform:   spec.Name(),
		RunID:      info.RunID,
		Scheduling: info.Scheduling,
	}
}

// Attach embeds metadata into an exported module. Only modules
// produced by this package carry metadata.
func Attach(m interface{ Name() string }, meta *Metadata) error {
	qm, ok := m.(*QuantizedModule)
	if !ok {
		return fmt.Errorf("export: cannot attach metadata to %T", m)
	}
	qm.meta = meta
	return nil
}
