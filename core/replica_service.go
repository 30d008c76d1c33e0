package core

// ReplicaService wraps a Ledger with the two asset operations a replica
// exposes over the wire: registering a new asset and transferring an
// existing one. It owns reference selection so callers never construct an
// Event's DAG position themselves.
type ReplicaService struct {
	ledger *Ledger
}

// NewReplicaService wraps ledger for use by an HTTP layer or the
// orchestrator's quorum write path.
func NewReplicaService(ledger *Ledger) *ReplicaService {
	return &ReplicaService{ledger: ledger}
}

// RegisterAsset records assetID as newly owned by userID. data carries any
// free-form asset metadata (e.g. NFC tag attributes); it is stored
// verbatim on the resulting event.
func (s *ReplicaService) RegisterAsset(assetID, userID string, data map[string]interface{}) (*Event, error) {
	refs := s.ledger.ChooseReferences()
	e, err := NewEvent(assetID, ActionRegister, userID, data, refs)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.AddEvent(e); err != nil {
		return nil, err
	}
	return e, nil
}

// TransferAsset records assetID moving from userID to recipientID.
// Ownership and self-transfer are pre-checked here against the current
// history so callers get a ValidationReject early rejection; the ledger's
// own validation in AddEvent is the final authority.
func (s *ReplicaService) TransferAsset(assetID, userID, recipientID string) (*Event, error) {
	history := s.ledger.GetAssetOwnershipHistory(assetID)
	if len(history) == 0 {
		return nil, newError(KindValidationReject, "asset %s is not registered", assetID)
	}
	currentOwner := history[len(history)-1].UserID
	if currentOwner != userID {
		return nil, newError(KindValidationReject, "transfer requested by %s, but asset is owned by %s", userID, currentOwner)
	}
	if recipientID == userID {
		return nil, newError(KindValidationReject, "cannot transfer asset to yourself")
	}

	data := map[string]interface{}{
		"recipient_id":       recipientID,
		"transfer_timestamp": nowSeconds(),
		"status":             "completed",
	}

	refs := s.ledger.ChooseReferences()
	e, err := NewEvent(assetID, ActionTransfer, userID, data, refs)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.AddEvent(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Ledger exposes the underlying ledger for read-only queries and integrity
// checks.
func (s *ReplicaService) Ledger() *Ledger {
	return s.ledger
}
