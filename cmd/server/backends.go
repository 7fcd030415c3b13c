package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/neftie/neftie/backend/internal/auth"
	"github.com/neftie/neftie/backend/internal/config"
	"github.com/neftie/neftie/backend/internal/posts"
	"github.com/neftie/neftie/backend/internal/store"
	"github.com/neftie/neftie/backend/internal/uploads"
)

// userBackend is a credential store that also keeps post refs.
type userBackend interface {
	auth.UserStore
	posts.Owners
}

// backends holds the connected stores selected by the configuration.
type backends struct {
	users   userBackend
	posts   posts.PostStore
	tx      posts.Transactor
	limiter auth.LoginLimiter
	files   uploads.FileStore // nil when attachments are disabled

	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects every store the configuration asks for. On error
// the connections opened so far are closed.
func openBackends(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *backends, err error) {
	b := &backends{tx: store.DirectTransactor{}, limiter: auth.NopLimiter{}}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	// ── MongoDB ──────────────────────────────────────────────
	var db *mongo.Database
	var mongoClient *mongo.Client
	if cfg.UsesMongo() {
		mongoClient, err = mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		b.closers = append(b.closers, func() { mongoClient.Disconnect(context.Background()) })
		if err = mongoClient.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("mongo ping: %w", err)
		}
		db = mongoClient.Database(cfg.MongoDB)
		log.Info("mongo connected", "db", cfg.MongoDB)
	}

	// ── Credential store ─────────────────────────────────────
	switch cfg.CredentialStore {
	case config.BackendMongo:
		users := store.NewMongoUserStore(db)
		if err = users.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo user indexes: %w", err)
		}
		b.users = users
	case config.BackendPostgres:
		pool, perr := pgxpool.New(ctx, cfg.PostgresDSN)
		if perr != nil {
			return nil, fmt.Errorf("postgres connect: %w", perr)
		}
		b.closers = append(b.closers, pool.Close)
		users := store.NewPostgresUserStore(pool)
		if err = users.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		b.users = users
		log.Info("postgres credential store ready")
	case config.BackendMemory:
		mem := store.NewMemoryStore()
		b.users = mem
		if cfg.PostStore == config.BackendMemory {
			b.posts = mem
		}
		log.Warn("using in-memory store; data is lost on exit")
	}

	// ── Post store ───────────────────────────────────────────
	if cfg.PostStore == config.BackendMongo {
		postStore := store.NewMongoPostStore(db)
		if err = postStore.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo post indexes: %w", err)
		}
		b.posts = postStore
	}

	if cfg.MongoTransactions {
		if cfg.CredentialStore == config.BackendMongo && cfg.PostStore == config.BackendMongo {
			b.tx = store.NewMongoTransactor(mongoClient)
			log.Info("post writes run in mongo transactions")
		} else {
			log.Warn("MONGO_TRANSACTIONS ignored: users and posts are not both in mongo")
		}
	}

	// ── Redis ────────────────────────────────────────────────
	if cfg.RedisAddr != "" {
		rdb, rerr := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if rerr != nil {
			return nil, fmt.Errorf("redis connect: %w", rerr)
		}
		b.closers = append(b.closers, func() { rdb.Close() })
		b.limiter = store.NewRedisLoginLimiter(rdb, cfg.LoginMaxAttempts, cfg.LoginWindow)
		log.Info("login limiter enabled", "max_attempts", cfg.LoginMaxAttempts, "window", cfg.LoginWindow)
	}

	// ── MinIO ────────────────────────────────────────────────
	if cfg.MinioEndpoint != "" {
		files, merr := store.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
			cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if merr != nil {
			return nil, fmt.Errorf("minio connect: %w", merr)
		}
		b.files = files
		log.Info("attachments enabled", "bucket", cfg.MinioBucket)
	}

	return b, nil
}
