package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"bankcore/config"
	"bankcore/models"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	_ Store = (*GormStore)(nil)
	_ Tx    = (*gormTx)(nil)
)

// GormStore хранилище на PostgreSQL
type GormStore struct {
	DB *gorm.DB
}

// Connect устанавливает соединение с базой данных и выполняет миграции
func Connect(cfg *config.Config) (*GormStore, error) {
	// Настраиваем логгер
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %v", err)
	}

	// Настраиваем пул соединений
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пула соединений: %v", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := runMigrations(cfg); err != nil {
		return nil, fmt.Errorf("ошибка выполнения SQL миграций: %v", err)
	}

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("ошибка автоматической миграции моделей: %v", err)
	}

	return &GormStore{DB: db}, nil
}

// Close закрывает подключение к базе данных
func (s *GormStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// runMigrations выполняет SQL миграции
func runMigrations(cfg *config.Config) error {
	m, err := migrate.New("file://"+cfg.MigrationsPath, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("ошибка создания миграции: %v", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка выполнения миграций: %v", err)
	}

	return nil
}

// autoMigrate дополняет схему полями моделей, которых еще нет в SQL миграциях
func autoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Card{},
		&models.CardTransaction{},
		&models.Deposit{},
		&models.Loan{},
		&models.LoanPayment{},
	)
	if err != nil {
		return fmt.Errorf("ошибка автоматической миграции: %v", err)
	}

	return nil
}

// Transaction выполняет fn в транзакции базы данных
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	tx := s.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&gormTx{db: tx}); err != nil {
		tx.Rollback()
		return err
	}

	return translate(tx.Commit().Error)
}

type gormTx struct {
	db *gorm.DB
}

// translate приводит ошибки gorm к ошибкам пакета
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func (t *gormTx) locked() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Методы для работы с пользователями

func (t *gormTx) UserByID(id uint) (*models.User, error) {
	var user models.User
	if err := t.db.First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (t *gormTx) UserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := t.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (t *gormTx) LockUser(id uint) (*models.User, error) {
	var user models.User
	if err := t.locked().First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (t *gormTx) CreateUser(user *models.User) error {
	return translate(t.db.Create(user).Error)
}

func (t *gormTx) UpdateUserRole(id uint, role models.Role) error {
	res := t.db.Model(&models.User{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Методы для работы с картами

func (t *gormTx) CardByID(id uint) (*models.Card, error) {
	var card models.Card
	if err := t.db.First(&card, id).Error; err != nil {
		return nil, translate(err)
	}
	return &card, nil
}

func (t *gormTx) CardByHolder(userID uint) (*models.Card, error) {
	var card models.Card
	if err := t.db.Where("holder_id = ?", userID).First(&card).Error; err != nil {
		return nil, translate(err)
	}
	return &card, nil
}

func (t *gormTx) CardByNumber(number string) (*models.Card, error) {
	var card models.Card
	if err := t.db.Where("number = ?", number).First(&card).Error; err != nil {
		return nil, translate(err)
	}
	return &card, nil
}

func (t *gormTx) LockCards(ids ...uint) ([]models.Card, error) {
	unique := uniqueSorted(ids)
	var cards []models.Card
	if err := t.locked().Where("id IN ?", unique).Order("id").Find(&cards).Error; err != nil {
		return nil, translate(err)
	}
	if len(cards) != len(unique) {
		return nil, ErrNotFound
	}
	return cards, nil
}

func (t *gormTx) CardNumberExists(number string) (bool, error) {
	var count int64
	if err := t.db.Model(&models.Card{}).Where("number = ?", number).Count(&count).Error; err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

func (t *gormTx) CardsByStatus(statuses ...models.CardStatus) ([]models.Card, error) {
	var cards []models.Card
	if err := t.db.Where("status IN ?", statuses).Order("id").Find(&cards).Error; err != nil {
		return nil, translate(err)
	}
	return cards, nil
}

func (t *gormTx) CreateCard(card *models.Card) error {
	return translate(t.db.Create(card).Error)
}

func (t *gormTx) SaveCard(card *models.Card) error {
	res := t.db.Model(card).
		Select("number", "cvv", "pin", "due_date", "status", "updated_at").
		Updates(card)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) DeleteCard(id uint) error {
	res := t.db.Delete(&models.Card{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustCardBalance выполняет условный UPDATE: конкурентные изменения одной карты
// сериализуются на блокировке строки, разные карты друг друга не ждут.
func (t *gormTx) AdjustCardBalance(id uint, delta, ceiling decimal.Decimal) (decimal.Decimal, error) {
	q := t.db.Model(&models.Card{}).Where("id = ?", id)
	if delta.IsNegative() {
		q = q.Where("balance >= ?", delta.Neg())
	} else {
		q = q.Where("balance + ? <= ?", delta, ceiling)
	}

	res := q.Updates(map[string]interface{}{
		"balance":    gorm.Expr("balance + ?", delta),
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return decimal.Zero, translate(res.Error)
	}

	if res.RowsAffected == 0 {
		if _, err := t.CardByID(id); err != nil {
			return decimal.Zero, err
		}
		if delta.IsNegative() {
			return decimal.Zero, ErrInsufficientBalance
		}
		return decimal.Zero, ErrBalanceCeiling
	}

	card, err := t.CardByID(id)
	if err != nil {
		return decimal.Zero, err
	}
	return card.Balance, nil
}

func (t *gormTx) CreateCardTransaction(ct *models.CardTransaction) error {
	return translate(t.db.Create(ct).Error)
}

func (t *gormTx) CardTransactions(cardID uint) ([]models.CardTransaction, error) {
	var list []models.CardTransaction
	err := t.db.Where("sender_card_id = ? OR receiver_card_id = ?", cardID, cardID).
		Order("created_at DESC, id DESC").
		Find(&list).Error
	if err != nil {
		return nil, translate(err)
	}
	return list, nil
}

// Методы для работы с депозитами

func (t *gormTx) CreateDeposit(d *models.Deposit) error {
	return translate(t.db.Create(d).Error)
}

func (t *gormTx) LockDeposit(id uint) (*models.Deposit, error) {
	var d models.Deposit
	if err := t.locked().First(&d, id).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (t *gormTx) DepositsByUser(userID uint) ([]models.Deposit, error) {
	var list []models.Deposit
	if err := t.db.Where("user_id = ?", userID).Order("id").Find(&list).Error; err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func (t *gormTx) DepositsByStatus(status models.DepositStatus) ([]models.Deposit, error) {
	var list []models.Deposit
	if err := t.db.Where("status = ?", status).Order("id").Find(&list).Error; err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func (t *gormTx) SaveDeposit(d *models.Deposit) error {
	return translate(t.db.Save(d).Error)
}

// Методы для работы с кредитами

func (t *gormTx) CreateLoan(l *models.Loan) error {
	return translate(t.db.Omit(clause.Associations).Create(l).Error)
}

func (t *gormTx) LockLoan(id uint) (*models.Loan, error) {
	var l models.Loan
	if err := t.locked().First(&l, id).Error; err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

func (t *gormTx) LoansByUser(userID uint) ([]models.Loan, error) {
	var list []models.Loan
	err := t.db.Preload("Payments", func(db *gorm.DB) *gorm.DB {
		return db.Order("payment_date, id")
	}).Where("user_id = ?", userID).Order("id").Find(&list).Error
	if err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func (t *gormTx) LoansByStatus(status models.LoanStatus) ([]models.Loan, error) {
	var list []models.Loan
	if err := t.db.Where("status = ?", status).Order("id").Find(&list).Error; err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func (t *gormTx) SaveLoan(l *models.Loan) error {
	return translate(t.db.Omit(clause.Associations).Save(l).Error)
}

func (t *gormTx) DeleteLoan(id uint) error {
	if err := t.db.Where("loan_id = ?", id).Delete(&models.LoanPayment{}).Error; err != nil {
		return translate(err)
	}
	res := t.db.Delete(&models.Loan{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) CreateLoanPayment(p *models.LoanPayment) error {
	return translate(t.db.Create(p).Error)
}

func (t *gormTx) LoanPayments(loanID uint) ([]models.LoanPayment, error) {
	var list []models.LoanPayment
	if err := t.db.Where("loan_id = ?", loanID).Order("payment_date, id").Find(&list).Error; err != nil {
		return nil, translate(err)
	}
	return list, nil
}
