package domain

import "context"

// RecordRepository is the abstraction for any kind of database intended to
// persist the immutable AuctionRecords of settled auctions.
type RecordRepository interface {
	// AddRecord persists the record of a settled auction.
	AddRecord(ctx context.Context, record *AuctionRecord) error
	// GetRecord returns the record of the given listing, if any.
	GetRecord(ctx context.Context, listingId string) (*AuctionRecord, error)
	// GetAllRecords returns all the records stored in the repository.
	GetAllRecords(ctx context.Context) ([]*AuctionRecord, error)
}
