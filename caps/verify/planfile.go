package verify

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/auxoncorp/ferros/caps/plan"
)

// blockFile is the on-disk shape of a block declaration.
type blockFile struct {
	Requests []requestFile `yaml:"requests"`
	Children []blockFile   `yaml:"children"`
}

type requestFile struct {
	Category string `yaml:"category"`
	Alias    string `yaml:"alias"`
	Name     string `yaml:"name"`
	SizeBits uint8  `yaml:"size_bits"`
	Count    int    `yaml:"count"`
	Dir      int    `yaml:"dir"`
	Table    int    `yaml:"table"`
}

// ParseBlock decodes a YAML block declaration into a plannable Block.
// Category strings match plan.Category: "memory", "slots", "address-slots".
func ParseBlock(data []byte) (*plan.Block, error) {
	var bf blockFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("verify: parsing block: %w", err)
	}
	return buildBlock(&bf)
}

func buildBlock(bf *blockFile) (*plan.Block, error) {
	b := &plan.Block{}
	for _, r := range bf.Requests {
		switch r.Category {
		case plan.CategoryMemory.String():
			b.Requests = append(b.Requests, plan.Memory(r.Alias, r.Name, r.SizeBits))
		case plan.CategorySlots.String():
			b.Requests = append(b.Requests, plan.Slots(r.Alias, r.Name, r.Count))
		case plan.CategoryAddrSlots.String():
			b.Requests = append(b.Requests, plan.AddrSlots(r.Alias, r.Name, r.Dir, r.Table))
		default:
			return nil, &CheckError{
				Type:    "Block",
				Message: fmt.Sprintf("request %q has unknown category %q", r.Name, r.Category),
				Details: map[string]interface{}{"name": r.Name, "category": r.Category},
			}
		}
	}
	for i := range bf.Children {
		child, err := buildBlock(&bf.Children[i])
		if err != nil {
			return nil, err
		}
		b.Children = append(b.Children, child)
	}
	return b, nil
}
