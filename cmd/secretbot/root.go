package main

import (
	"github.com/spf13/cobra"

	"github.com/m3rciful/secretbot/core/buildinfo"
)

const defaultConfigPath = "config.yaml"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "secretbot",
	Short: "LINE bot that keeps one secret per user",
	Long: `secretbot serves the LINE Messaging API webhook.

Send "悄悄話" to the bot to store a secret, send it again to hear it back.

Configuration is read from config.yaml (or $CONFIG_PATH) and the environment:
  LINE_ACC_TOKEN   channel access token
  LINE_SECRET      channel secret
  DATABASE_URL     PostgreSQL connection URL`,
	Version:       buildinfo.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_PATH or config.yaml)")
}
