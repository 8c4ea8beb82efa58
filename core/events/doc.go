// Package events defines the dispatch related events emitted on the event bus.
//
// Available event types:
//   - OfferEvent: an offer was extended to a vendor
//   - AcceptEvent: a vendor won the assignment
//   - RejectEvent: a vendor was excluded (explicit, timeout or send failure)
//   - ExhaustedEvent: no eligible candidates remained
package events
