package stubapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/procurahq/procura/internal/po"
)

// SeedDemo loads users and a handful of purchase orders across the
// lifecycle, for the development server and example sessions.
func SeedDemo(store *Store) {
	store.AddUser(User{Token: "admin-token", Name: "Ada Admin", Email: "ada@acme.test", Role: po.RoleAdmin})
	store.AddUser(User{Token: "buyer-token", Name: "Bo Buyer", Email: "bo@acme.test", Role: po.RoleBuyer})
	store.AddUser(User{Token: "supplier-token", Name: "Sam Supplier", Email: "sam@steelco.test", Role: po.RoleSupplier})

	buyer := po.CompanyRef{ID: 1, Name: "Acme Manufacturing", Email: "purchasing@acme.test"}
	supplier := po.CompanyRef{ID: 2, Name: "SteelCo Industries", Email: "sales@steelco.test"}

	delivery := po.NewDate(time.Now().AddDate(0, 1, 0))
	first := store.CreatePO(po.PurchaseOrder{
		BuyerCompany:    buyer,
		SupplierCompany: supplier,
		Currency:        "USD",
		TotalAmount:     decimal.NewFromFloat(12500.00),
		Items: []po.Item{
			{
				Name:      "Steel beam 6m",
				Quantity:  decimal.NewFromInt(50),
				Unit:      "pcs",
				UnitPrice: decimal.NewFromFloat(250.00),
				LineTotal: decimal.NewFromFloat(12500.00),
			},
		},
		DeliveryAddress:      "12 Foundry Road, Gary, IN",
		PaymentTerms:         "Net 30",
		ExpectedDeliveryDate: &delivery,
		OrderDate:            po.NewDate(time.Now()),
		Notes:                "Deliver to dock B",
	}, "seed")

	second := store.CreatePO(po.PurchaseOrder{
		BuyerCompany:    buyer,
		SupplierCompany: po.CompanyRef{ID: 3, Name: "Plastics United"},
		Currency:        "USD",
		TotalAmount:     decimal.NewFromFloat(3400.50),
		Items: []po.Item{
			{
				Name:      "HDPE pellets",
				Quantity:  decimal.NewFromInt(500),
				Unit:      "kg",
				UnitPrice: decimal.NewFromFloat(6.80),
				LineTotal: decimal.NewFromFloat(3400.00),
			},
		},
		DeliveryAddress: "12 Foundry Road, Gary, IN",
		PaymentTerms:    "Net 45",
		OrderDate:       po.NewDate(time.Now()),
	}, "seed")

	admin := User{Name: "Ada Admin", Role: po.RoleAdmin}
	_, _ = store.Transition(second.ID, po.ActionSubmit, po.StatusPendingApproval, TransitionInput{}, admin)
	_, _ = store.Transition(second.ID, po.ActionApprove, po.StatusApproved, TransitionInput{ApprovalNotes: "Within budget"}, admin)
	_, _ = store.Transition(second.ID, po.ActionSend, po.StatusSentToSupplier, TransitionInput{}, admin)

	_, _ = store.ProposeModification(first.ID, po.ProposeInput{
		Field:    po.FieldDeliveryAddress,
		NewValue: "Dock C, 12 Foundry Road, Gary, IN",
		Reason:   "Dock B closed for maintenance",
	}, User{Name: "Sam Supplier", Role: po.RoleSupplier})
}
