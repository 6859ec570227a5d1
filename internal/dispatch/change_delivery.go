package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ShopAssist/internal/lang"
	"github.com/BTreeMap/ShopAssist/internal/lock"
	"github.com/BTreeMap/ShopAssist/internal/models"
	"github.com/BTreeMap/ShopAssist/internal/store"
	"github.com/BTreeMap/ShopAssist/internal/telephony"
)

// changeDelivery runs the address change flow:
//
//	no new address              -> ask for confirmation
//	address does not validate   -> ask for confirmation
//	valid, not confirmed        -> ask for confirmation
//	valid, confirmed, unshipped -> update the order
//	valid, confirmed, shipped   -> call the carrier
//
// Both mutations run under the order's lock.
func (r *Router) changeDelivery(ctx context.Context, req Request) string {
	snap, reply := r.lookupOrder(ctx, req)
	if reply != "" {
		return reply
	}
	order := snap.Order
	language := req.Message.Language
	params, _ := req.Message.Parameters.(models.ChangeDeliveryParams)

	if strings.TrimSpace(params.NewDeliveryInfo) == "" {
		slog.Debug("Router.changeDelivery: no new address", "order", order.Name)
		return r.confirmAddress(ctx, req)
	}

	validation, err := r.gen.ValidateAddress(ctx, params.NewDeliveryInfo)
	if err != nil {
		return generationFailure(req.Message.Intent, language, err)
	}
	if !validation.Valid() {
		slog.Warn("Router.changeDelivery: address did not validate", "order", order.Name)
		return r.confirmAddress(ctx, req)
	}
	if !params.DeliveryAddressConfirmed {
		slog.Debug("Router.changeDelivery: awaiting confirmation", "order", order.Name)
		return r.confirmAddress(ctx, req)
	}

	release, ok, err := r.locker.TryLock(ctx, lock.Key(order.Name), lock.DefaultTTL)
	if err != nil {
		slog.Error("Router.changeDelivery: lock failed", "order", order.Name, "error", err)
		return lang.ProcessingError.For(language)
	}
	if !ok {
		slog.Warn("Router.changeDelivery: change already in progress", "order", order.Name)
		return lang.AddressChangeInProgress.For(language)
	}
	defer release()

	if !order.Shipped() {
		return r.updateAddress(ctx, order, validation.FormattedAddress, language)
	}
	return r.callCarrier(ctx, order, validation.FormattedAddress, language)
}

func (r *Router) confirmAddress(ctx context.Context, req Request) string {
	out, err := r.gen.ConfirmAddress(ctx, req.Message.Parameters, req.Text, req.Turns, req.Message.Language)
	if err != nil {
		return generationFailure(req.Message.Intent, req.Message.Language, err)
	}
	return out
}

// addressUpdateKey identifies one confirmed (order, address) pair.
func addressUpdateKey(orderName, formatted string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(formatted))))
	return store.DedupScopeAddressUpdate + ":" + orderName + ":" + hex.EncodeToString(sum[:8])
}

// claimAddressUpdate records key before a mutation. It returns applied when
// the same confirmed address was already applied, the in-progress reply when
// it is being applied, and recorded=false when no dedup repo is available.
func (r *Router) claimAddressUpdate(ctx context.Context, order *models.Order, key, applied string, language models.Language) (recorded bool, reply string) {
	if r.dedup == nil {
		return false, ""
	}
	inserted, err := r.dedup.RecordKey(ctx, key, store.DedupScopeAddressUpdate)
	switch {
	case err != nil:
		slog.Warn("Router.claimAddressUpdate: dedup unavailable", "order", order.Name, "error", err)
		return false, ""
	case !inserted:
		done, derr := r.dedup.IsDuplicate(ctx, key)
		if derr == nil && done {
			slog.Info("Router.claimAddressUpdate: address already applied", "order", order.Name)
			return false, applied
		}
		return false, lang.AddressChangeInProgress.For(language)
	}
	return true, ""
}

// settleAddressUpdate marks a recorded key processed on success and
// releases it otherwise so the shopper can retry.
func (r *Router) settleAddressUpdate(ctx context.Context, order *models.Order, key string, applied bool) {
	if applied {
		if err := r.dedup.MarkProcessed(ctx, key); err != nil {
			slog.Warn("Router.settleAddressUpdate: failed to mark dedup key", "order", order.Name, "error", err)
		}
		return
	}
	if err := r.dedup.ReleaseKey(ctx, key); err != nil {
		slog.Warn("Router.settleAddressUpdate: failed to release dedup key", "order", order.Name, "error", err)
	}
}

// updateAddress mutates an unshipped order's shipping address at most once
// per confirmed address.
func (r *Router) updateAddress(ctx context.Context, order *models.Order, formatted string, language models.Language) string {
	key := addressUpdateKey(order.Name, formatted)
	recorded, reply := r.claimAddressUpdate(ctx, order, key, lang.AddressUpdated.Format(language, formatted), language)
	if reply != "" {
		return reply
	}

	slog.Info("Router.updateAddress: updating shipping address", "order", order.Name)
	err := r.orders.UpdateShippingAddress(ctx, order.AdminGraphQLAPIID, formatted, order.ShippingAddress.Contact())
	if err != nil {
		slog.Error("Router.updateAddress: mutation failed", "order", order.Name, "error", err)
	}
	if recorded {
		r.settleAddressUpdate(ctx, order, key, err == nil)
	}
	if err != nil {
		return lang.AddressUpdateFailed.For(language)
	}
	return lang.AddressUpdated.Format(language, formatted)
}

// callCarrier asks the carrier by phone to redirect a shipped order, at most
// once per confirmed address. Only a completed call counts as applied; a
// call still pending at the wait ceiling keeps its record so a retry cannot
// dial again.
func (r *Router) callCarrier(ctx context.Context, order *models.Order, formatted string, language models.Language) string {
	if r.caller == nil {
		slog.Error("Router.callCarrier: no telephony configured", "order", order.Name)
		return lang.CallNotInitiated.For(language)
	}
	key := addressUpdateKey(order.Name, formatted)
	recorded, reply := r.claimAddressUpdate(ctx, order, key, lang.CallCompleted.For(language), language)
	if reply != "" {
		return reply
	}

	outcome := r.caller.ChangeAddress(ctx, telephony.CallRequest{
		OrderName:      order.Name,
		TrackingNumber: order.TrackingNumber(),
		NewAddress:     formatted,
		Phone:          r.carrierPhone,
		Language:       language,
	})
	slog.Info("Router.callCarrier: call finished", "order", order.Name, "result", outcome.Result, "status", outcome.Status)
	if recorded {
		switch outcome.Result {
		case telephony.CallResultCompleted:
			r.settleAddressUpdate(ctx, order, key, true)
		case telephony.CallResultNotInitiated, telephony.CallResultFailed:
			r.settleAddressUpdate(ctx, order, key, false)
		}
	}
	return outcome.Reply(language)
}
