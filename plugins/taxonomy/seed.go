package taxonomy

import (
	"context"

	"floracore/internal/core"
)

type seedRegion struct {
	code string
	name string
}

type seedContinent struct {
	code    string
	name    string
	regions []seedRegion
}

// wgsrpd lists the level 1 continents and level 2 regions of the World
// Geographical Scheme for Recording Plant Distributions, the hierarchy
// species distributions and collection sites reference.
var wgsrpd = []seedContinent{
	{code: "1", name: "Europe", regions: []seedRegion{
		{"10", "Northern Europe"},
		{"11", "Middle Europe"},
		{"12", "Southwestern Europe"},
		{"13", "Southeastern Europe"},
		{"14", "Eastern Europe"},
	}},
	{code: "2", name: "Africa", regions: []seedRegion{
		{"20", "Northern Africa"},
		{"21", "Macaronesia"},
		{"22", "West Tropical Africa"},
		{"23", "West-Central Tropical Africa"},
		{"24", "Northeast Tropical Africa"},
		{"25", "East Tropical Africa"},
		{"26", "South Tropical Africa"},
		{"27", "Southern Africa"},
		{"28", "Middle Atlantic Ocean"},
		{"29", "Western Indian Ocean"},
	}},
	{code: "3", name: "Asia-Temperate", regions: []seedRegion{
		{"30", "Siberia"},
		{"31", "Russian Far East"},
		{"32", "Middle Asia"},
		{"33", "Caucasus"},
		{"34", "Western Asia"},
		{"35", "Arabian Peninsula"},
		{"36", "China"},
		{"37", "Mongolia"},
		{"38", "Eastern Asia"},
	}},
	{code: "4", name: "Asia-Tropical", regions: []seedRegion{
		{"40", "Indian Subcontinent"},
		{"41", "Indo-China"},
		{"42", "Malesia"},
		{"43", "Papuasia"},
	}},
	{code: "5", name: "Australasia", regions: []seedRegion{
		{"50", "Australia"},
		{"51", "New Zealand"},
	}},
	{code: "6", name: "Pacific", regions: []seedRegion{
		{"60", "Southwestern Pacific"},
		{"61", "South-Central Pacific"},
		{"62", "Northwestern Pacific"},
		{"63", "North-Central Pacific"},
	}},
	{code: "7", name: "Northern America", regions: []seedRegion{
		{"70", "Subarctic America"},
		{"71", "Western Canada"},
		{"72", "Eastern Canada"},
		{"73", "Northwestern U.S.A."},
		{"74", "North-Central U.S.A."},
		{"75", "Northeastern U.S.A."},
		{"76", "Southwestern U.S.A."},
		{"77", "South-Central U.S.A."},
		{"78", "Southeastern U.S.A."},
		{"79", "Mexico"},
	}},
	{code: "8", name: "Southern America", regions: []seedRegion{
		{"80", "Central America"},
		{"81", "Caribbean"},
		{"82", "Northern South America"},
		{"83", "Western South America"},
		{"84", "Brazil"},
		{"85", "Southern South America"},
	}},
	{code: "9", name: "Antarctic", regions: []seedRegion{
		{"90", "Subantarctic Islands"},
		{"91", "Antarctic Continent"},
	}},
}

// Install seeds the WGSRPD continental hierarchy on first install. Codes
// already present in the store are left untouched, so a partially seeded
// or hand-edited geography table survives a re-run.
func (Plugin) Install(ctx context.Context, store core.PersistentStore, fresh bool) error {
	if !fresh {
		return nil
	}
	existing := make(map[string]string)
	for _, geo := range store.ListGeographies() {
		if geo.Code != "" {
			existing[geo.Code] = geo.ID
		}
	}
	_, err := store.RunInTransaction(ctx, func(tx core.Transaction) error {
		for _, continent := range wgsrpd {
			parentID, ok := existing[continent.code]
			if !ok {
				created, err := tx.CreateGeography(core.Geography{Name: continent.name, Code: continent.code})
				if err != nil {
					return err
				}
				parentID = created.ID
			}
			for _, region := range continent.regions {
				if _, ok := existing[region.code]; ok {
					continue
				}
				parent := parentID
				geo := core.Geography{Name: region.name, Code: region.code, ParentID: &parent}
				if _, err := tx.CreateGeography(geo); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return err
}
