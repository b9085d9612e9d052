package orders

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/shopfeed-backend/internal/catalog"
	"github.com/angelmondragon/shopfeed-backend/pkg/db"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	"github.com/angelmondragon/shopfeed-backend/pkg/pagination"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentNotification struct {
	kind      enums.NotificationKind
	recipient int64
	payload   any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Notify(_ context.Context, kind enums.NotificationKind, recipient int64, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{kind: kind, recipient: recipient, payload: payload})
	return nil
}

type fixture struct {
	svc       Service
	conn      *gorm.DB
	notifier  *recordingNotifier
	buyer     models.User
	other     models.User
	partner   models.User
	rival     models.User
	contact   models.Contact
	phone     *models.Listing // price 100
	accessory *models.Listing // price 250
	foreign   *models.Listing // rival's listing, price 40
}

func createUser(t *testing.T, conn *gorm.DB, email string, kind enums.UserType) models.User {
	t.Helper()
	user := models.User{Email: email, PasswordHash: "x", Type: kind, IsActive: true}
	require.NoError(t, conn.Create(&user).Error)
	return user
}

func createListing(t *testing.T, repo catalog.Repository, ownerID, categoryID, externalID int64, name string, price int64) *models.Listing {
	t.Helper()
	ctx := context.Background()
	shop, err := repo.UpsertShop(ctx, ownerID, "shop", nil)
	require.NoError(t, err)
	_, err = repo.UpsertCategory(ctx, shop.ID, categoryID, "category")
	require.NoError(t, err)
	product, err := repo.UpsertProduct(ctx, name, categoryID)
	require.NoError(t, err)
	listing := &models.Listing{ProductID: product.ID, ShopID: shop.ID, ExternalID: externalID, Quantity: 10, Price: price, PriceRRC: price}
	require.NoError(t, repo.CreateListing(ctx, listing))
	return listing
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	fx := &fixture{conn: conn, notifier: &recordingNotifier{}}
	fx.buyer = createUser(t, conn, "buyer@example.com", enums.UserTypeBuyer)
	fx.other = createUser(t, conn, "other@example.com", enums.UserTypeBuyer)
	fx.partner = createUser(t, conn, "partner@example.com", enums.UserTypeShop)
	fx.rival = createUser(t, conn, "rival@example.com", enums.UserTypeShop)

	fx.contact = models.Contact{UserID: fx.buyer.ID, City: "Moscow", Street: "Tverskaya", Phone: "+7 900 000 00 00"}
	require.NoError(t, conn.Create(&fx.contact).Error)

	catalogRepo := catalog.NewRepository(conn)
	fx.phone = createListing(t, catalogRepo, fx.partner.ID, 1, 10, "phone", 100)
	fx.accessory = createListing(t, catalogRepo, fx.partner.ID, 1, 11, "case", 250)
	fx.foreign = createListing(t, catalogRepo, fx.rival.ID, 1, 10, "phone", 40)

	svc, err := NewService(ServiceParams{
		DB:         db.Wrap(conn),
		Repository: NewRepository(conn),
		Notifier:   fx.notifier,
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	fx.svc = svc
	return fx
}

func (fx *fixture) fillBasket(t *testing.T) *OrderDTO {
	t.Helper()
	res, err := fx.svc.AddItems(context.Background(), fx.buyer.ID, []AddItem{
		{ListingID: fx.phone.ID, Quantity: 3},
		{ListingID: fx.accessory.ID, Quantity: 2},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, res.Count)
	basket, err := fx.svc.GetBasket(context.Background(), fx.buyer.ID)
	require.NoError(t, err)
	require.NotNil(t, basket)
	return basket
}

func TestBasketTotal(t *testing.T) {
	fx := newFixture(t)
	basket := fx.fillBasket(t)

	require.Equal(t, enums.OrderStateBasket, basket.State)
	require.Len(t, basket.Items, 2)
	require.Equal(t, int64(800), basket.TotalSum)
	require.Equal(t, "phone", basket.Items[0].Listing.Product.Name)
	require.Equal(t, "category", basket.Items[0].Listing.Product.Category)
}

func TestAddItemsNeverDuplicatesLines(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.fillBasket(t)

	res, err := fx.svc.AddItems(ctx, fx.buyer.ID, []AddItem{
		{ListingID: fx.phone.ID, Quantity: 1},
		{ListingID: fx.foreign.ID, Quantity: 1},
		{ListingID: fx.foreign.ID, Quantity: 4},
		{ListingID: 9999, Quantity: 1},
		{ListingID: fx.accessory.ID, Quantity: 0},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Count)
	require.Equal(t, []ItemError{
		{Index: 0, ID: fx.phone.ID, Code: string(pkgerrors.CodeConflict), Message: "listing is already in the basket"},
		{Index: 2, ID: fx.foreign.ID, Code: string(pkgerrors.CodeConflict), Message: "listing is already in the basket"},
		{Index: 3, ID: 9999, Code: string(pkgerrors.CodeReference), Message: "listing not found"},
		{Index: 4, ID: fx.accessory.ID, Code: string(pkgerrors.CodeValidation), Message: "quantity must be a positive integer"},
	}, res.Errors)

	basket, err := fx.svc.GetBasket(ctx, fx.buyer.ID)
	require.NoError(t, err)
	require.Len(t, basket.Items, 3)
	require.Equal(t, int64(3), basket.Items[0].Quantity)

	var baskets int64
	require.NoError(t, fx.conn.Model(&models.Order{}).Where("user_id = ? AND state = ?", fx.buyer.ID, enums.OrderStateBasket).Count(&baskets).Error)
	require.EqualValues(t, 1, baskets)
}

func TestMalformedItemsAreReportedPerEntry(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	var adds []AddItem
	require.NoError(t, json.Unmarshal([]byte(`[
		{"product_info": "`+strconv.FormatInt(fx.phone.ID, 10)+`", "quantity": "2"},
		{"product_info": `+strconv.FormatInt(fx.accessory.ID, 10)+`, "quantity": "two"}
	]`), &adds))

	res, err := fx.svc.AddItems(ctx, fx.buyer.ID, adds)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Count)
	require.Len(t, res.Errors, 1)
	require.Equal(t, 1, res.Errors[0].Index)
	require.Equal(t, string(pkgerrors.CodeValidation), res.Errors[0].Code)
	require.Equal(t, "quantity must be an integer", res.Errors[0].Message)

	basket, err := fx.svc.GetBasket(ctx, fx.buyer.ID)
	require.NoError(t, err)
	require.Len(t, basket.Items, 1)

	var updates []UpdateItem
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id": "abc", "quantity": 1},
		{"id": `+strconv.FormatInt(basket.Items[0].ID, 10)+`, "quantity": "5"}
	]`), &updates))

	res, err = fx.svc.UpdateItems(ctx, fx.buyer.ID, updates)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Count)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "id must be an integer", res.Errors[0].Message)

	basket, err = fx.svc.GetBasket(ctx, fx.buyer.ID)
	require.NoError(t, err)
	require.Equal(t, int64(500), basket.TotalSum)
}

func TestAddItemsRejectsArchivedListing(t *testing.T) {
	fx := newFixture(t)
	now := time.Now().UTC()
	require.NoError(t, fx.conn.Model(&models.Listing{}).Where("id = ?", fx.phone.ID).Update("archived_at", now).Error)

	res, err := fx.svc.AddItems(context.Background(), fx.buyer.ID, []AddItem{{ListingID: fx.phone.ID, Quantity: 1}})
	require.NoError(t, err)
	require.Zero(t, res.Count)
	require.Equal(t, string(pkgerrors.CodeReference), res.Errors[0].Code)
}

func TestReplacingListingsEmptiesOpenBasketsOnly(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	basket := fx.fillBasket(t)

	// other places an order for the accessory before the catalog is replaced
	otherContact := models.Contact{UserID: fx.other.ID, City: "Kazan", Street: "Baumana", Phone: "+7 900 000 00 01"}
	require.NoError(t, fx.conn.Create(&otherContact).Error)
	_, err := fx.svc.AddItems(ctx, fx.other.ID, []AddItem{{ListingID: fx.accessory.ID, Quantity: 1}})
	require.NoError(t, err)
	otherBasket, err := fx.svc.GetBasket(ctx, fx.other.ID)
	require.NoError(t, err)
	require.NoError(t, fx.svc.PlaceOrder(ctx, fx.other.ID, otherBasket.ID, otherContact.ID))

	catalogRepo := catalog.NewRepository(fx.conn)
	stats, err := catalogRepo.ReplaceListings(ctx, fx.phone.ShopID, time.Now().UTC())
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.BasketLines)
	require.EqualValues(t, 1, stats.Archived)
	require.EqualValues(t, 1, stats.Deleted)

	emptied, err := fx.svc.GetBasket(ctx, fx.buyer.ID)
	require.NoError(t, err)
	require.NotNil(t, emptied)
	require.Empty(t, emptied.Items)
	require.Zero(t, emptied.TotalSum)

	err = fx.svc.PlaceOrder(ctx, fx.buyer.ID, basket.ID, fx.contact.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	placed, err := fx.svc.ListOrders(ctx, fx.other.ID)
	require.NoError(t, err)
	require.Len(t, placed, 1)
	require.Len(t, placed[0].Items, 1)
	require.Equal(t, int64(250), placed[0].TotalSum)

	res, err := fx.svc.AddItems(ctx, fx.buyer.ID, []AddItem{{ListingID: fx.phone.ID, Quantity: 1}})
	require.NoError(t, err)
	require.Zero(t, res.Count)
	require.Equal(t, string(pkgerrors.CodeReference), res.Errors[0].Code)

	relisted := createListing(t, catalogRepo, fx.partner.ID, 1, 10, "phone", 120)
	res, err = fx.svc.AddItems(ctx, fx.buyer.ID, []AddItem{{ListingID: relisted.ID, Quantity: 2}})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Count)

	basket, err = fx.svc.GetBasket(ctx, fx.buyer.ID)
	require.NoError(t, err)
	require.Len(t, basket.Items, 1)
	require.Equal(t, int64(240), basket.TotalSum)
	require.NoError(t, fx.svc.PlaceOrder(ctx, fx.buyer.ID, basket.ID, fx.contact.ID))
}

func TestUpdateAndRemoveItems(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	basket := fx.fillBasket(t)
	phoneLine := basket.Items[0].ID
	caseLine := basket.Items[1].ID

	// a line in someone else's basket
	_, err := fx.svc.AddItems(ctx, fx.other.ID, []AddItem{{ListingID: fx.phone.ID, Quantity: 1}})
	require.NoError(t, err)
	otherBasket, err := fx.svc.GetBasket(ctx, fx.other.ID)
	require.NoError(t, err)
	otherLine := otherBasket.Items[0].ID

	res, err := fx.svc.UpdateItems(ctx, fx.buyer.ID, []UpdateItem{
		{ID: phoneLine, Quantity: 5},
		{ID: otherLine, Quantity: 7},
		{ID: caseLine, Quantity: -1},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Count)
	require.Len(t, res.Errors, 2)
	require.Equal(t, string(pkgerrors.CodeReference), res.Errors[0].Code)
	require.Equal(t, string(pkgerrors.CodeValidation), res.Errors[1].Code)

	basket, err = fx.svc.GetBasket(ctx, fx.buyer.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5*100+2*250), basket.TotalSum)

	res, err = fx.svc.RemoveItems(ctx, fx.buyer.ID, []int64{caseLine, otherLine})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Count)
	require.Equal(t, []ItemError{{Index: 1, ID: otherLine, Code: string(pkgerrors.CodeReference), Message: "line not found in basket"}}, res.Errors)

	otherBasket, err = fx.svc.GetBasket(ctx, fx.other.ID)
	require.NoError(t, err)
	require.Len(t, otherBasket.Items, 1)
	require.Equal(t, int64(1), otherBasket.Items[0].Quantity)
}

func TestUpdateWithoutBasketReportsEveryItem(t *testing.T) {
	fx := newFixture(t)
	res, err := fx.svc.UpdateItems(context.Background(), fx.buyer.ID, []UpdateItem{{ID: 1, Quantity: 2}})
	require.NoError(t, err)
	require.Zero(t, res.Count)
	require.Len(t, res.Errors, 1)

	basket, err := fx.svc.GetBasket(context.Background(), fx.buyer.ID)
	require.NoError(t, err)
	require.Nil(t, basket)
}

func TestPlaceOrder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	basket := fx.fillBasket(t)

	require.NoError(t, fx.svc.PlaceOrder(ctx, fx.buyer.ID, basket.ID, fx.contact.ID))
	require.Equal(t, []sentNotification{{
		kind:      enums.NotificationKindOrderPlaced,
		recipient: fx.buyer.ID,
		payload:   map[string]any{"order_id": basket.ID},
	}}, fx.notifier.sent)

	placed, err := fx.svc.ListOrders(ctx, fx.buyer.ID)
	require.NoError(t, err)
	require.Len(t, placed, 1)
	require.Equal(t, enums.OrderStateNew, placed[0].State)
	require.Equal(t, int64(800), placed[0].TotalSum)
	require.Equal(t, fx.contact.ID, placed[0].Contact.ID)

	current, err := fx.svc.GetBasket(ctx, fx.buyer.ID)
	require.NoError(t, err)
	require.Nil(t, current)

	err = fx.svc.PlaceOrder(ctx, fx.buyer.ID, basket.ID, fx.contact.ID)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
}

func TestPlaceOrderRequirements(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// empty basket
	res, err := fx.svc.AddItems(ctx, fx.buyer.ID, []AddItem{{ListingID: fx.phone.ID, Quantity: 1}})
	require.NoError(t, err)
	basket, err := fx.svc.GetBasket(ctx, fx.buyer.ID)
	require.NoError(t, err)
	_, err = fx.svc.RemoveItems(ctx, fx.buyer.ID, []int64{basket.Items[0].ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Count)
	err = fx.svc.PlaceOrder(ctx, fx.buyer.ID, basket.ID, fx.contact.ID)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = fx.svc.AddItems(ctx, fx.buyer.ID, []AddItem{{ListingID: fx.phone.ID, Quantity: 1}})
	require.NoError(t, err)

	// someone else's contact
	foreign := models.Contact{UserID: fx.other.ID, City: "Kazan", Street: "Baumana", Phone: "1"}
	require.NoError(t, fx.conn.Create(&foreign).Error)
	err = fx.svc.PlaceOrder(ctx, fx.buyer.ID, basket.ID, foreign.ID)
	require.Equal(t, pkgerrors.CodeReference, pkgerrors.CodeOf(err))

	// someone else's basket
	err = fx.svc.PlaceOrder(ctx, fx.other.ID, basket.ID, foreign.ID)
	require.Equal(t, pkgerrors.CodeReference, pkgerrors.CodeOf(err))

	require.Empty(t, fx.notifier.sent)
}

func TestPartnerOrdersShowOnlyOwnLines(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.AddItems(ctx, fx.buyer.ID, []AddItem{
		{ListingID: fx.phone.ID, Quantity: 3},
		{ListingID: fx.foreign.ID, Quantity: 10},
	})
	require.NoError(t, err)
	basket, err := fx.svc.GetBasket(ctx, fx.buyer.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3*100+10*40), basket.TotalSum)

	page, err := fx.svc.ListPartnerOrders(ctx, fx.partner.ID, pagination.Params{})
	require.NoError(t, err)
	require.Empty(t, page.Items)

	require.NoError(t, fx.svc.PlaceOrder(ctx, fx.buyer.ID, basket.ID, fx.contact.ID))

	page, err = fx.svc.ListPartnerOrders(ctx, fx.partner.ID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Len(t, page.Items[0].Items, 1)
	require.Equal(t, int64(300), page.Items[0].TotalSum)

	rivalPage, err := fx.svc.ListPartnerOrders(ctx, fx.rival.ID, pagination.Params{})
	require.NoError(t, err)
	require.Equal(t, int64(400), rivalPage.Items[0].TotalSum)
}

func TestPartnerOrdersPagination(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		order := models.Order{UserID: fx.buyer.ID, State: enums.OrderStateNew, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, fx.conn.Omit("User", "Contact", "Lines").Create(&order).Error)
		require.NoError(t, fx.conn.Omit("Listing").Create(&models.OrderLine{OrderID: order.ID, ListingID: fx.phone.ID, Quantity: 1}).Error)
	}

	first, err := fx.svc.ListPartnerOrders(ctx, fx.partner.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)
	require.True(t, first.Items[0].Created.After(first.Items[1].Created))

	second, err := fx.svc.ListPartnerOrders(ctx, fx.partner.ID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	require.Empty(t, second.NextCursor)
	require.True(t, second.Items[0].Created.Equal(base))

	_, err = fx.svc.ListPartnerOrders(ctx, fx.partner.ID, pagination.Params{Cursor: "!!"})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestUpdateOrderState(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	basket := fx.fillBasket(t)

	err := fx.svc.UpdateOrderState(ctx, fx.partner.ID, basket.ID, enums.OrderStateConfirmed)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err), "baskets are not visible to partners")

	require.NoError(t, fx.svc.PlaceOrder(ctx, fx.buyer.ID, basket.ID, fx.contact.ID))

	err = fx.svc.UpdateOrderState(ctx, fx.rival.ID, basket.ID, enums.OrderStateConfirmed)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	err = fx.svc.UpdateOrderState(ctx, fx.partner.ID, basket.ID, enums.OrderStateBasket)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	// overwrite is arbitrary, including backwards
	require.NoError(t, fx.svc.UpdateOrderState(ctx, fx.partner.ID, basket.ID, enums.OrderStateDelivered))
	require.NoError(t, fx.svc.UpdateOrderState(ctx, fx.partner.ID, basket.ID, enums.OrderStateConfirmed))

	orders, err := fx.svc.ListOrders(ctx, fx.buyer.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStateConfirmed, orders[0].State)

	last := fx.notifier.sent[len(fx.notifier.sent)-1]
	require.Equal(t, enums.NotificationKindOrderStateChanged, last.kind)
	require.Equal(t, fx.buyer.ID, last.recipient)
}
