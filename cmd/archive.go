package cmd

import (
	"fmt"
	"log"

	"VcFM/config"
	"VcFM/storage"

	"github.com/spf13/cobra"
)

var (
	archivePrefix    string
	archiveStats     bool
	archiveRecursive bool
	archiveDelete    bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "归档存储桶管理",
	Long:  `查看和管理归档存储桶中的对象，支持列出文件、查看统计信息、递归显示目录结构、删除目录等功能。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		browser, err := storage.NewBrowser(
			cfg.MinioEndpoint,
			cfg.MinioAccessKey,
			cfg.MinioSecretKey,
			cfg.MinioBucket,
			cfg.MinioUseSSL,
		)
		if err != nil {
			log.Fatalf("创建MinIO客户端失败: %v", err)
		}

		if archiveDelete {
			if archivePrefix == "" {
				log.Fatal("删除操作需要指定目录前缀")
			}
			fmt.Printf("\n删除目录: %s\n", archivePrefix)
			if err := browser.DeleteDirectory(archivePrefix); err != nil {
				log.Fatalf("删除目录失败: %v", err)
			}
		} else if archiveRecursive {
			fmt.Printf("\n递归显示目录结构 (前缀: %s)...\n", archivePrefix)
			if err := browser.PrintTree(archivePrefix); err != nil {
				log.Fatalf("显示目录结构失败: %v", err)
			}
		} else if archiveStats {
			fmt.Println("\n获取存储桶统计信息...")
			if err := browser.PrintBucketStats(archivePrefix); err != nil {
				log.Fatalf("获取存储桶统计信息失败: %v", err)
			}
		} else {
			objects, stats, err := browser.ListObjects(archivePrefix, true)
			if err != nil {
				log.Fatalf("列出归档对象失败: %v", err)
			}
			fmt.Printf("对象数量: %d, 总大小: %d 字节\n", stats.TotalObjects, stats.TotalSize)
			for _, obj := range objects {
				fmt.Printf("%s\t%d\n", obj.Key, obj.Size)
			}
		}
	},
}

func init() {
	archiveCmd.Flags().StringVarP(&archivePrefix, "prefix", "p", "", "对象前缀过滤")
	archiveCmd.Flags().BoolVarP(&archiveStats, "stats", "s", false, "显示存储桶统计信息")
	archiveCmd.Flags().BoolVarP(&archiveRecursive, "recursive", "r", false, "递归显示目录结构")
	archiveCmd.Flags().BoolVarP(&archiveDelete, "delete", "d", false, "删除指定前缀下的对象")
	rootCmd.AddCommand(archiveCmd)
}
