package repository

import (
	"bastion-server/internal/infrastructure/database/repository/billingrepo"
	"bastion-server/internal/infrastructure/database/repository/chatrepo"
	"bastion-server/internal/infrastructure/database/transaction"

	"github.com/google/wire"
)

var RepositoryProvider = wire.NewSet(
	transaction.NewDatabase,
	chatrepo.NewChatGormRepository,
	billingrepo.NewBillingGormRepository,
)
