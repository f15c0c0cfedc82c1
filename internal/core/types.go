package core

import "floracore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Family             = domain.Family
	Genus              = domain.Genus
	Species            = domain.Species
	VernacularName     = domain.VernacularName
	Geography          = domain.Geography
	Accession          = domain.Accession
	Source             = domain.Source
	Collection         = domain.Collection
	SourceDetail       = domain.SourceDetail
	Plant              = domain.Plant
	Location           = domain.Location
	PluginRecord       = domain.PluginRecord
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityFamily         = domain.EntityFamily
	EntityGenus          = domain.EntityGenus
	EntitySpecies        = domain.EntitySpecies
	EntityVernacularName = domain.EntityVernacularName
	EntityGeography      = domain.EntityGeography
	EntityAccession      = domain.EntityAccession
	EntityPlant          = domain.EntityPlant
	EntityLocation       = domain.EntityLocation
	EntitySourceDetail   = domain.EntitySourceDetail
	EntityPluginRecord   = domain.EntityPluginRecord
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	RuleView        = domain.RuleView
	PersistentStore = domain.PersistentStore
)
