package intake

// Stage identifies a wizard step. Stages are ordered; skipping is never
// allowed in either direction.
type Stage string

const (
	StageVehicleIdentification Stage = "vehicle_identification"
	StageContactValidation     Stage = "contact_validation"
	StageDocumentCustody       Stage = "document_custody"
	StageFinalized             Stage = "finalized"
)

// forwardOf is the advance graph. Document custody has no forward edge here:
// leaving it goes through Finalize, not Advance.
var forwardOf = map[Stage]Stage{
	StageVehicleIdentification: StageContactValidation,
	StageContactValidation:     StageDocumentCustody,
}

// backwardOf allows stepping back to the immediately preceding stage only.
// Finalized is terminal.
var backwardOf = map[Stage]Stage{
	StageContactValidation: StageVehicleIdentification,
	StageDocumentCustody:   StageContactValidation,
}
