package testhelper

import "testing"

func TestCollectionGraphIsConnected(t *testing.T) {
	view := Collection()

	sp := view.Species[0]
	genus, ok := view.FindGenus(sp.GenusID)
	if !ok {
		t.Fatalf("species genus %q not in view", sp.GenusID)
	}
	if _, ok := view.FindFamily(genus.FamilyID); !ok {
		t.Fatalf("genus family %q not in view", genus.FamilyID)
	}

	acc := view.Accessions[0]
	if _, ok := view.FindSpecies(acc.SpeciesID); !ok {
		t.Fatalf("accession species %q not in view", acc.SpeciesID)
	}

	plant := view.Plants[0]
	if _, ok := view.FindAccession(plant.AccessionID); !ok {
		t.Fatalf("plant accession %q not in view", plant.AccessionID)
	}
	if _, ok := view.FindLocation(plant.LocationID); !ok {
		t.Fatalf("plant location %q not in view", plant.LocationID)
	}
}

func TestFindMissingID(t *testing.T) {
	view := Collection()
	if _, ok := view.FindFamily("nope"); ok {
		t.Fatal("unexpected family")
	}
	if _, ok := view.FindPlant("nope"); ok {
		t.Fatal("unexpected plant")
	}
}
