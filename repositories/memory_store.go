package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/models"
)

// memoryDB keeps every collection in process. Values are stored by copy so
// callers never share memory with the store.
type memoryDB struct {
	mu sync.Mutex

	users         map[primitive.ObjectID]models.User
	products      map[primitive.ObjectID]models.Product
	carts         map[primitive.ObjectID]models.Cart // keyed by user
	orders        map[primitive.ObjectID]models.Order
	reviews       map[primitive.ObjectID]models.Review
	packages      map[primitive.ObjectID]models.SubscriptionPackage
	subscriptions map[primitive.ObjectID]models.VendorSubscription
	transactions  map[primitive.ObjectID]models.PaymentTransaction
	flashSales    map[primitive.ObjectID]models.FlashSale
	notifications map[primitive.ObjectID]models.Notification
	settings      *models.Settings
}

// NewMemoryStore returns a Store backed by maps. It honours the same
// contracts as the Mongo store and is used for tests and local runs.
func NewMemoryStore() *Store {
	db := &memoryDB{
		users:         map[primitive.ObjectID]models.User{},
		products:      map[primitive.ObjectID]models.Product{},
		carts:         map[primitive.ObjectID]models.Cart{},
		orders:        map[primitive.ObjectID]models.Order{},
		reviews:       map[primitive.ObjectID]models.Review{},
		packages:      map[primitive.ObjectID]models.SubscriptionPackage{},
		subscriptions: map[primitive.ObjectID]models.VendorSubscription{},
		transactions:  map[primitive.ObjectID]models.PaymentTransaction{},
		flashSales:    map[primitive.ObjectID]models.FlashSale{},
		notifications: map[primitive.ObjectID]models.Notification{},
	}
	return &Store{
		Users:         &memUsers{db},
		Products:      &memProducts{db},
		Carts:         &memCarts{db},
		Orders:        &memOrders{db},
		Reviews:       &memReviews{db},
		Packages:      &memPackages{db},
		Subscriptions: &memSubscriptions{db},
		Transactions:  &memTransactions{db},
		FlashSales:    &memFlashSales{db},
		Settings:      &memSettings{db},
		Notifications: &memNotifications{db},
		tx:            &memoryTransactor{db: db},
	}
}

type txKey struct{}

// memoryTransactor serialises units of work and restores a snapshot of
// every collection when fn fails.
type memoryTransactor struct {
	mu sync.Mutex
	db *memoryDB
}

func (t *memoryTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.db.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

func (db *memoryDB) snapshot() *memoryDB {
	db.mu.Lock()
	defer db.mu.Unlock()

	snap := &memoryDB{
		users:         copyMap(db.users, cloneUser),
		products:      copyMap(db.products, cloneProduct),
		carts:         copyMap(db.carts, cloneCart),
		orders:        copyMap(db.orders, cloneOrder),
		reviews:       copyMap(db.reviews, cloneReview),
		packages:      copyMap(db.packages, clonePackage),
		subscriptions: copyMap(db.subscriptions, cloneSubscription),
		transactions:  copyMap(db.transactions, cloneTransaction),
		flashSales:    copyMap(db.flashSales, cloneFlashSale),
		notifications: copyMap(db.notifications, cloneNotification),
	}
	if db.settings != nil {
		s := *db.settings
		snap.settings = &s
	}
	return snap
}

func (db *memoryDB) restore(snap *memoryDB) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.users = snap.users
	db.products = snap.products
	db.carts = snap.carts
	db.orders = snap.orders
	db.reviews = snap.reviews
	db.packages = snap.packages
	db.subscriptions = snap.subscriptions
	db.transactions = snap.transactions
	db.flashSales = snap.flashSales
	db.notifications = snap.notifications
	db.settings = snap.settings
}

func copyMap[K comparable, V any](m map[K]V, clone func(V) V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneUser(u models.User) models.User {
	u.Documents = cloneSlice(u.Documents)
	u.VerifiedAt = clonePtr(u.VerifiedAt)
	return u
}

func cloneProduct(p models.Product) models.Product {
	p.Images = cloneSlice(p.Images)
	return p
}

func cloneCart(c models.Cart) models.Cart {
	c.Items = cloneSlice(c.Items)
	return c
}

func cloneOrder(o models.Order) models.Order {
	o.Items = cloneSlice(o.Items)
	o.CancelledAt = clonePtr(o.CancelledAt)
	o.DeliveredAt = clonePtr(o.DeliveredAt)
	return o
}

func cloneReview(r models.Review) models.Review {
	r.Reply = clonePtr(r.Reply)
	return r
}

func clonePackage(p models.SubscriptionPackage) models.SubscriptionPackage {
	p.Features = cloneSlice(p.Features)
	return p
}

func cloneSubscription(s models.VendorSubscription) models.VendorSubscription {
	s.PaymentDetails.PaymentDate = clonePtr(s.PaymentDetails.PaymentDate)
	s.PreviousSubscription = clonePtr(s.PreviousSubscription)
	s.LastRenewalNotification = clonePtr(s.LastRenewalNotification)
	s.CancelledAt = clonePtr(s.CancelledAt)
	return s
}

func cloneTransaction(t models.PaymentTransaction) models.PaymentTransaction {
	t.RelatedSubscription = clonePtr(t.RelatedSubscription)
	t.RelatedOrder = clonePtr(t.RelatedOrder)
	t.CardDetails = clonePtr(t.CardDetails)
	t.CompletedAt = clonePtr(t.CompletedAt)
	if t.MpesaDetails != nil {
		m := *t.MpesaDetails
		m.ResultCode = clonePtr(m.ResultCode)
		m.TransactionDate = clonePtr(m.TransactionDate)
		t.MpesaDetails = &m
	}
	return t
}

func cloneFlashSale(f models.FlashSale) models.FlashSale {
	f.Products = cloneSlice(f.Products)
	return f
}

func cloneNotification(n models.Notification) models.Notification {
	if n.Data != nil {
		data := make(map[string]string, len(n.Data))
		for k, v := range n.Data {
			data[k] = v
		}
		n.Data = data
	}
	return n
}

// newestFirst sorts by creation time, latest first
func newestFirst[T any](items []T, createdAt func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return createdAt(items[i]).After(createdAt(items[j]))
	})
}

func paginate[T any](items []T, page Page) ([]T, int64) {
	page = page.Normalize()
	total := int64(len(items))
	start := int(page.skip())
	if start >= len(items) {
		return []T{}, total
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], total
}

func containsFold(s, term string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(term))
}

type memUsers struct{ db *memoryDB }

func (r *memUsers) Create(ctx context.Context, user *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user.Email = strings.ToLower(user.Email)
	for _, existing := range r.db.users {
		if existing.Email == user.Email {
			return ErrDuplicate
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	stamp(&user.CreatedAt, &user.UpdatedAt)
	r.db.users[user.ID] = cloneUser(*user)
	return nil
}

func (r *memUsers) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user, ok := r.db.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	user = cloneUser(user)
	return &user, nil
}

func (r *memUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	email = strings.ToLower(email)
	for _, user := range r.db.users {
		if user.Email == email {
			user = cloneUser(user)
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memUsers) Update(ctx context.Context, user *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.users[user.ID]; !ok {
		return ErrNotFound
	}
	stamp(&user.CreatedAt, &user.UpdatedAt)
	r.db.users[user.ID] = cloneUser(*user)
	return nil
}

func (r *memUsers) matching(filter UserFilter) []models.User {
	var out []models.User
	for _, u := range r.db.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.VerificationStatus != "" && u.VerificationStatus != filter.VerificationStatus {
			continue
		}
		if filter.Search != "" && !containsFold(u.FirstName, filter.Search) && !containsFold(u.LastName, filter.Search) &&
			!containsFold(u.Email, filter.Search) && !containsFold(u.BusinessName, filter.Search) {
			continue
		}
		out = append(out, cloneUser(u))
	}
	return out
}

func (r *memUsers) List(ctx context.Context, filter UserFilter) ([]models.User, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	users := r.matching(filter)
	newestFirst(users, func(u models.User) time.Time { return u.CreatedAt })
	page, total := paginate(users, filter.Page)
	return page, total, nil
}

func (r *memUsers) Count(ctx context.Context, filter UserFilter) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return int64(len(r.matching(filter))), nil
}

type memProducts struct{ db *memoryDB }

func (r *memProducts) Create(ctx context.Context, product *models.Product) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if product.ID.IsZero() {
		product.ID = primitive.NewObjectID()
	}
	stamp(&product.CreatedAt, &product.UpdatedAt)
	r.db.products[product.ID] = cloneProduct(*product)
	return nil
}

func (r *memProducts) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	product, ok := r.db.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	product = cloneProduct(product)
	return &product, nil
}

func (r *memProducts) Update(ctx context.Context, product *models.Product) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.products[product.ID]; !ok {
		return ErrNotFound
	}
	stamp(&product.CreatedAt, &product.UpdatedAt)
	r.db.products[product.ID] = cloneProduct(*product)
	return nil
}

func (r *memProducts) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.products[id]; !ok {
		return ErrNotFound
	}
	delete(r.db.products, id)
	return nil
}

func (r *memProducts) List(ctx context.Context, filter ProductFilter) ([]models.Product, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var products []models.Product
	for _, p := range r.db.products {
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Merchant != nil && p.Merchant != *filter.Merchant {
			continue
		}
		if filter.Featured != nil && p.IsFeatured != *filter.Featured {
			continue
		}
		if filter.Search != "" && !containsFold(p.Name, filter.Search) && !containsFold(p.Description, filter.Search) {
			continue
		}
		if filter.MinPrice > 0 && p.Price < filter.MinPrice {
			continue
		}
		if filter.MaxPrice > 0 && p.Price > filter.MaxPrice {
			continue
		}
		products = append(products, cloneProduct(p))
	}
	newestFirst(products, func(p models.Product) time.Time { return p.CreatedAt })
	page, total := paginate(products, filter.Page)
	return page, total, nil
}

func (r *memProducts) CountByMerchant(ctx context.Context, merchantID primitive.ObjectID, featuredOnly bool) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var count int64
	for _, p := range r.db.products {
		if p.Merchant == merchantID && p.IsActive && (!featuredOnly || p.IsFeatured) {
			count++
		}
	}
	return count, nil
}

func (r *memProducts) AdjustStock(ctx context.Context, id primitive.ObjectID, delta int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	product, ok := r.db.products[id]
	if !ok {
		return ErrNotFound
	}
	if product.Stock+delta < 0 {
		return ErrInsufficientStock
	}
	product.Stock += delta
	product.UpdatedAt = time.Now()
	r.db.products[id] = product
	return nil
}

func (r *memProducts) UpdateRating(ctx context.Context, id primitive.ObjectID, rating float64, numReviews int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	product, ok := r.db.products[id]
	if !ok {
		return ErrNotFound
	}
	product.Rating = rating
	product.NumReviews = numReviews
	product.UpdatedAt = time.Now()
	r.db.products[id] = product
	return nil
}

type memCarts struct{ db *memoryDB }

func (r *memCarts) FindByUser(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cart, ok := r.db.carts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cart = cloneCart(cart)
	return &cart, nil
}

func (r *memCarts) Save(ctx context.Context, cart *models.Cart) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if cart.ID.IsZero() {
		cart.ID = primitive.NewObjectID()
	}
	stamp(&cart.CreatedAt, &cart.UpdatedAt)
	r.db.carts[cart.User] = cloneCart(*cart)
	return nil
}

func (r *memCarts) Clear(ctx context.Context, userID primitive.ObjectID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if cart, ok := r.db.carts[userID]; ok {
		cart.Items = []models.CartItem{}
		cart.UpdatedAt = time.Now()
		r.db.carts[userID] = cart
	}
	return nil
}

type memOrders struct{ db *memoryDB }

func (r *memOrders) Create(ctx context.Context, order *models.Order) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	stamp(&order.CreatedAt, &order.UpdatedAt)
	r.db.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (r *memOrders) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	order, ok := r.db.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	order = cloneOrder(order)
	return &order, nil
}

func (r *memOrders) Update(ctx context.Context, order *models.Order) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.orders[order.ID]; !ok {
		return ErrNotFound
	}
	stamp(&order.CreatedAt, &order.UpdatedAt)
	r.db.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (r *memOrders) List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var orders []models.Order
	for _, o := range r.db.orders {
		if filter.User != nil && o.User != *filter.User {
			continue
		}
		if filter.Merchant != nil && !o.HasMerchant(*filter.Merchant) {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		orders = append(orders, cloneOrder(o))
	}
	newestFirst(orders, func(o models.Order) time.Time { return o.CreatedAt })
	page, total := paginate(orders, filter.Page)
	return page, total, nil
}

func (r *memOrders) HasDeliveredItem(ctx context.Context, userID, productID primitive.ObjectID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, o := range r.db.orders {
		if o.User != userID || o.Status != models.OrderStatusDelivered {
			continue
		}
		for _, item := range o.Items {
			if item.Product == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *memOrders) CountByStatus(ctx context.Context) (map[string]int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	counts := map[string]int64{}
	for _, o := range r.db.orders {
		counts[o.Status]++
	}
	return counts, nil
}

func (r *memOrders) PaidRevenue(ctx context.Context) (float64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var total float64
	for _, o := range r.db.orders {
		if o.PaymentStatus == models.PaymentStatusPaid {
			total += o.Total
		}
	}
	return total, nil
}

type memReviews struct{ db *memoryDB }

func (r *memReviews) Create(ctx context.Context, review *models.Review) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.reviews {
		if existing.User == review.User && existing.Product == review.Product {
			return ErrDuplicate
		}
	}
	if review.ID.IsZero() {
		review.ID = primitive.NewObjectID()
	}
	stamp(&review.CreatedAt, &review.UpdatedAt)
	r.db.reviews[review.ID] = cloneReview(*review)
	return nil
}

func (r *memReviews) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Review, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	review, ok := r.db.reviews[id]
	if !ok {
		return nil, ErrNotFound
	}
	review = cloneReview(review)
	return &review, nil
}

func (r *memReviews) FindByUserAndProduct(ctx context.Context, userID, productID primitive.ObjectID) (*models.Review, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, review := range r.db.reviews {
		if review.User == userID && review.Product == productID {
			review = cloneReview(review)
			return &review, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memReviews) Update(ctx context.Context, review *models.Review) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.reviews[review.ID]; !ok {
		return ErrNotFound
	}
	stamp(&review.CreatedAt, &review.UpdatedAt)
	r.db.reviews[review.ID] = cloneReview(*review)
	return nil
}

func (r *memReviews) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.reviews[id]; !ok {
		return ErrNotFound
	}
	delete(r.db.reviews, id)
	return nil
}

func (r *memReviews) List(ctx context.Context, filter ReviewFilter) ([]models.Review, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var reviews []models.Review
	for _, rv := range r.db.reviews {
		if filter.Product != nil && rv.Product != *filter.Product {
			continue
		}
		if filter.Merchant != nil && rv.Merchant != *filter.Merchant {
			continue
		}
		if filter.Status != "" && rv.Status != filter.Status {
			continue
		}
		reviews = append(reviews, cloneReview(rv))
	}
	newestFirst(reviews, func(rv models.Review) time.Time { return rv.CreatedAt })
	page, total := paginate(reviews, filter.Page)
	return page, total, nil
}

func (r *memReviews) RatingSummary(ctx context.Context, productID primitive.ObjectID) (float64, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var sum, count int
	for _, rv := range r.db.reviews {
		if rv.Product == productID && rv.Status != models.ReviewStatusRejected {
			sum += rv.Rating
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(count), count, nil
}

type memPackages struct{ db *memoryDB }

func (r *memPackages) Create(ctx context.Context, pkg *models.SubscriptionPackage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if pkg.ID.IsZero() {
		pkg.ID = primitive.NewObjectID()
	}
	stamp(&pkg.CreatedAt, &pkg.UpdatedAt)
	r.db.packages[pkg.ID] = clonePackage(*pkg)
	return nil
}

func (r *memPackages) FindByID(ctx context.Context, id primitive.ObjectID) (*models.SubscriptionPackage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	pkg, ok := r.db.packages[id]
	if !ok {
		return nil, ErrNotFound
	}
	pkg = clonePackage(pkg)
	return &pkg, nil
}

func (r *memPackages) Update(ctx context.Context, pkg *models.SubscriptionPackage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.packages[pkg.ID]; !ok {
		return ErrNotFound
	}
	stamp(&pkg.CreatedAt, &pkg.UpdatedAt)
	r.db.packages[pkg.ID] = clonePackage(*pkg)
	return nil
}

func (r *memPackages) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.packages[id]; !ok {
		return ErrNotFound
	}
	delete(r.db.packages, id)
	return nil
}

func (r *memPackages) List(ctx context.Context, activeOnly bool) ([]models.SubscriptionPackage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	packages := []models.SubscriptionPackage{}
	for _, pkg := range r.db.packages {
		if activeOnly && !pkg.IsActive {
			continue
		}
		packages = append(packages, clonePackage(pkg))
	}
	sort.SliceStable(packages, func(i, j int) bool {
		if packages[i].Priority != packages[j].Priority {
			return packages[i].Priority > packages[j].Priority
		}
		return packages[i].Price < packages[j].Price
	})
	return packages, nil
}

type memSubscriptions struct{ db *memoryDB }

// conflictsWithActive mirrors the partial unique index of the Mongo store
func (r *memSubscriptions) conflictsWithActive(sub *models.VendorSubscription) bool {
	if sub.Status != models.SubscriptionStatusActive {
		return false
	}
	for id, existing := range r.db.subscriptions {
		if id != sub.ID && existing.Vendor == sub.Vendor && existing.Status == models.SubscriptionStatusActive {
			return true
		}
	}
	return false
}

func (r *memSubscriptions) Create(ctx context.Context, sub *models.VendorSubscription) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if sub.ID.IsZero() {
		sub.ID = primitive.NewObjectID()
	}
	if r.conflictsWithActive(sub) {
		return ErrDuplicate
	}
	stamp(&sub.CreatedAt, &sub.UpdatedAt)
	r.db.subscriptions[sub.ID] = cloneSubscription(*sub)
	return nil
}

func (r *memSubscriptions) FindByID(ctx context.Context, id primitive.ObjectID) (*models.VendorSubscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	sub, ok := r.db.subscriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	sub = cloneSubscription(sub)
	return &sub, nil
}

func (r *memSubscriptions) Update(ctx context.Context, sub *models.VendorSubscription) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.subscriptions[sub.ID]; !ok {
		return ErrNotFound
	}
	if r.conflictsWithActive(sub) {
		return ErrDuplicate
	}
	stamp(&sub.CreatedAt, &sub.UpdatedAt)
	r.db.subscriptions[sub.ID] = cloneSubscription(*sub)
	return nil
}

func (r *memSubscriptions) latest(match func(models.VendorSubscription) bool) (*models.VendorSubscription, error) {
	var found *models.VendorSubscription
	for _, sub := range r.db.subscriptions {
		if !match(sub) {
			continue
		}
		if found == nil || sub.CreatedAt.After(found.CreatedAt) {
			s := cloneSubscription(sub)
			found = &s
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *memSubscriptions) FindActiveByVendor(ctx context.Context, vendorID primitive.ObjectID) (*models.VendorSubscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	return r.latest(func(s models.VendorSubscription) bool {
		return s.Vendor == vendorID && s.Status == models.SubscriptionStatusActive
	})
}

func (r *memSubscriptions) FindLatestPendingByVendor(ctx context.Context, vendorID primitive.ObjectID) (*models.VendorSubscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	return r.latest(func(s models.VendorSubscription) bool {
		return s.Vendor == vendorID && s.Status == models.SubscriptionStatusPending
	})
}

func (r *memSubscriptions) FindRenewals(ctx context.Context, previousID primitive.ObjectID) ([]models.VendorSubscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	subs := []models.VendorSubscription{}
	for _, s := range r.db.subscriptions {
		if s.PreviousSubscription != nil && *s.PreviousSubscription == previousID {
			subs = append(subs, cloneSubscription(s))
		}
	}
	newestFirst(subs, func(s models.VendorSubscription) time.Time { return s.CreatedAt })
	return subs, nil
}

func (r *memSubscriptions) MarkReminded(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	sub, ok := r.db.subscriptions[id]
	if !ok {
		return ErrNotFound
	}
	stamped := at
	sub.LastRenewalNotification = &stamped
	sub.UpdatedAt = time.Now()
	r.db.subscriptions[id] = sub
	return nil
}

func (r *memSubscriptions) FindExpiring(ctx context.Context, from, to, notifiedBefore time.Time) ([]models.VendorSubscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	subs := []models.VendorSubscription{}
	for _, s := range r.db.subscriptions {
		if s.Status != models.SubscriptionStatusActive {
			continue
		}
		if s.EndDate.Before(from) || s.EndDate.After(to) {
			continue
		}
		if s.LastRenewalNotification != nil && !s.LastRenewalNotification.Before(notifiedBefore) {
			continue
		}
		subs = append(subs, cloneSubscription(s))
	}
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].EndDate.Before(subs[j].EndDate) })
	return subs, nil
}

func (r *memSubscriptions) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for id, s := range r.db.subscriptions {
		if s.Status == models.SubscriptionStatusActive && s.EndDate.Before(now) {
			s.Status = models.SubscriptionStatusExpired
			s.AutoRenew = false
			s.UpdatedAt = now
			r.db.subscriptions[id] = s
			n++
		}
	}
	return n, nil
}

func (r *memSubscriptions) List(ctx context.Context, filter SubscriptionFilter) ([]models.VendorSubscription, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var subs []models.VendorSubscription
	for _, s := range r.db.subscriptions {
		if filter.Vendor != nil && s.Vendor != *filter.Vendor {
			continue
		}
		if filter.Package != nil && s.Package != *filter.Package {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		subs = append(subs, cloneSubscription(s))
	}
	newestFirst(subs, func(s models.VendorSubscription) time.Time { return s.CreatedAt })
	page, total := paginate(subs, filter.Page)
	return page, total, nil
}

func (r *memSubscriptions) CountActive(ctx context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for _, s := range r.db.subscriptions {
		if s.IsEntitled(now) {
			n++
		}
	}
	return n, nil
}

type memTransactions struct{ db *memoryDB }

func (r *memTransactions) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.transactions {
		if existing.TransactionID == tx.TransactionID {
			return ErrDuplicate
		}
	}
	if tx.ID.IsZero() {
		tx.ID = primitive.NewObjectID()
	}
	stamp(&tx.CreatedAt, &tx.UpdatedAt)
	r.db.transactions[tx.ID] = cloneTransaction(*tx)
	return nil
}

func (r *memTransactions) latest(match func(models.PaymentTransaction) bool) (*models.PaymentTransaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var found *models.PaymentTransaction
	for _, tx := range r.db.transactions {
		if !match(tx) {
			continue
		}
		if found == nil || tx.CreatedAt.After(found.CreatedAt) {
			t := cloneTransaction(tx)
			found = &t
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *memTransactions) FindByID(ctx context.Context, id primitive.ObjectID) (*models.PaymentTransaction, error) {
	return r.latest(func(t models.PaymentTransaction) bool { return t.ID == id })
}

func (r *memTransactions) FindByTransactionID(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	return r.latest(func(t models.PaymentTransaction) bool { return t.TransactionID == transactionID })
}

func (r *memTransactions) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentTransaction, error) {
	return r.latest(func(t models.PaymentTransaction) bool {
		return t.MpesaDetails != nil && t.MpesaDetails.CheckoutRequestID == checkoutRequestID
	})
}

func (r *memTransactions) FindLatestBySubscription(ctx context.Context, subscriptionID primitive.ObjectID) (*models.PaymentTransaction, error) {
	return r.latest(func(t models.PaymentTransaction) bool {
		return t.RelatedSubscription != nil && *t.RelatedSubscription == subscriptionID
	})
}

func (r *memTransactions) FindLatestByOrder(ctx context.Context, orderID primitive.ObjectID) (*models.PaymentTransaction, error) {
	return r.latest(func(t models.PaymentTransaction) bool {
		return t.RelatedOrder != nil && *t.RelatedOrder == orderID
	})
}

func (r *memTransactions) Update(ctx context.Context, tx *models.PaymentTransaction) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.transactions[tx.ID]; !ok {
		return ErrNotFound
	}
	stamp(&tx.CreatedAt, &tx.UpdatedAt)
	r.db.transactions[tx.ID] = cloneTransaction(*tx)
	return nil
}

func (r *memTransactions) ListByUser(ctx context.Context, userID primitive.ObjectID, page Page) ([]models.PaymentTransaction, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var txs []models.PaymentTransaction
	for _, t := range r.db.transactions {
		if t.User == userID {
			txs = append(txs, cloneTransaction(t))
		}
	}
	newestFirst(txs, func(t models.PaymentTransaction) time.Time { return t.CreatedAt })
	items, total := paginate(txs, page)
	return items, total, nil
}

func (r *memTransactions) SumCompleted(ctx context.Context, types ...string) (float64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var total float64
	for _, t := range r.db.transactions {
		if t.Status != models.TransactionStatusCompleted {
			continue
		}
		if len(types) > 0 && !containsString(types, t.Type) {
			continue
		}
		total += t.Amount
	}
	return total, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type memFlashSales struct{ db *memoryDB }

func (r *memFlashSales) Create(ctx context.Context, sale *models.FlashSale) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if sale.ID.IsZero() {
		sale.ID = primitive.NewObjectID()
	}
	stamp(&sale.CreatedAt, &sale.UpdatedAt)
	r.db.flashSales[sale.ID] = cloneFlashSale(*sale)
	return nil
}

func (r *memFlashSales) FindByID(ctx context.Context, id primitive.ObjectID) (*models.FlashSale, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	sale, ok := r.db.flashSales[id]
	if !ok {
		return nil, ErrNotFound
	}
	sale = cloneFlashSale(sale)
	return &sale, nil
}

func (r *memFlashSales) Update(ctx context.Context, sale *models.FlashSale) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.flashSales[sale.ID]; !ok {
		return ErrNotFound
	}
	stamp(&sale.CreatedAt, &sale.UpdatedAt)
	r.db.flashSales[sale.ID] = cloneFlashSale(*sale)
	return nil
}

func (r *memFlashSales) Delete(ctx context.Context, id primitive.ObjectID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.flashSales[id]; !ok {
		return ErrNotFound
	}
	delete(r.db.flashSales, id)
	return nil
}

func (r *memFlashSales) List(ctx context.Context, runningAt *time.Time) ([]models.FlashSale, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	sales := []models.FlashSale{}
	for _, s := range r.db.flashSales {
		if runningAt != nil && !s.IsRunning(*runningAt) {
			continue
		}
		sales = append(sales, cloneFlashSale(s))
	}
	sort.SliceStable(sales, func(i, j int) bool { return sales[i].StartDate.After(sales[j].StartDate) })
	return sales, nil
}

type memSettings struct{ db *memoryDB }

func (r *memSettings) Get(ctx context.Context) (*models.Settings, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.db.settings == nil {
		return models.DefaultSettings(), nil
	}
	s := *r.db.settings
	return &s, nil
}

func (r *memSettings) Save(ctx context.Context, settings *models.Settings) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if settings.ID.IsZero() {
		if r.db.settings != nil {
			settings.ID = r.db.settings.ID
		} else {
			settings.ID = primitive.NewObjectID()
		}
	}
	settings.UpdatedAt = time.Now()
	s := *settings
	r.db.settings = &s
	return nil
}

type memNotifications struct{ db *memoryDB }

func (r *memNotifications) Create(ctx context.Context, n *models.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	r.db.notifications[n.ID] = cloneNotification(*n)
	return nil
}

func (r *memNotifications) ListByUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	notifications := []models.Notification{}
	for _, n := range r.db.notifications {
		if n.UserID == userID {
			notifications = append(notifications, cloneNotification(n))
		}
	}
	newestFirst(notifications, func(n models.Notification) time.Time { return n.CreatedAt })
	if len(notifications) > limit {
		notifications = notifications[:limit]
	}
	return notifications, nil
}

func (r *memNotifications) MarkRead(ctx context.Context, id, userID primitive.ObjectID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	n, ok := r.db.notifications[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	n.IsRead = true
	r.db.notifications[id] = n
	return nil
}
