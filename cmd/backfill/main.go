package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"runtime/debug"
	"time"

	_ "github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"

	"drift-gateway/internal/chain"
	"drift-gateway/internal/config"
	"drift-gateway/internal/logic/decoder"
	"drift-gateway/internal/store"
	"drift-gateway/internal/svc"
	"drift-gateway/internal/types"
	"drift-gateway/pkg/logger"
)

var configFile = flag.String("f", "etc/backfill.yaml", "the config file")

// 历史回补：按程序地址向历史方向翻页签名，逐笔解码并 upsert 落库。
// 断点存 Redis，重复运行从上次停止处继续。
func main() {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
		}
	}()

	flag.Parse()

	var c config.BackfillConfig
	conf.MustLoad(*configFile, &c)

	if err := logger.Init(c.LogConf.ToLogOption()); err != nil {
		logx.Errorf("logger init failed: %v", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(c); err != nil {
		logger.Errorf("[Backfill] 运行失败: %v", err)
		os.Exit(1)
	}
}

func run(c config.BackfillConfig) error {
	ctx := context.Background()

	program := c.DriftProgramID
	if program == "" {
		program = decoder.DefaultDriftProgram
	}
	programKey, err := types.TryPubkeyFromBase58(program)
	if err != nil {
		return err
	}

	chainClient := chain.NewClient(c.RpcConf.Endpoint, time.Duration(c.RpcConf.ConfirmTimeoutMs)*time.Millisecond)
	dec := decoder.NewDecoder(chainClient, programKey)

	db, err := sql.Open("postgres", c.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	actions := store.NewActionStore(db)
	if err := actions.EnsureSchema(ctx); err != nil {
		return err
	}

	rdb := svc.NewRedisClient(c.RedisAddr)
	defer rdb.Close()
	cursor := store.NewBackfillCursor(rdb)

	before, err := cursor.Get(ctx, program)
	if err != nil {
		return err
	}
	if before != "" {
		logger.Infof("[Backfill] 从断点继续: before=%s", before)
	}

	pageLimit := c.PageLimit
	if pageLimit <= 0 {
		pageLimit = 100
	}

	page := 0
	total := 0
	for {
		if c.MaxPages > 0 && page >= c.MaxPages {
			logger.Infof("[Backfill] 达到单次翻页上限 %d，退出", c.MaxPages)
			return nil
		}

		infos, err := chainClient.ListSignatures(ctx, program, before, pageLimit)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			logger.Infof("[Backfill] 历史签名已回补完成: 共 %d 笔", total)
			return nil
		}

		for _, info := range infos {
			// 链上失败交易不解码，不产生动作记录
			if info.Failed {
				continue
			}
			_, records, err := dec.DecodeSignature(ctx, info.Signature)
			if err != nil {
				logger.Warnf("[Backfill] 解码失败，跳过: signature=%s err=%v", info.Signature, err)
				continue
			}
			if err := actions.InsertActions(ctx, records); err != nil {
				return err
			}
			total += len(records)
		}

		before = infos[len(infos)-1].Signature
		if err := cursor.Set(ctx, program, before); err != nil {
			return err
		}
		page++
		logger.Infof("[Backfill] 第 %d 页完成: last=%s 累计动作 %d", page, before, total)
	}
}
